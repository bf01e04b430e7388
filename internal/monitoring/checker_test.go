package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landslide-cli/internal/config"
	"github.com/sells-group/landslide-cli/internal/model"
)

func failingRuns() *mockRuns {
	runs := &mockRuns{}
	for i := 0; i < 6; i++ {
		runs.runs = append(runs.runs, model.Run{
			ID:        string(rune('a' + i)),
			Status:    model.RunStatusFailed,
			CreatedAt: now.Add(-time.Hour),
		})
	}
	return runs
}

func TestChecker_Interval(t *testing.T) {
	tests := []struct {
		secs int
		want time.Duration
	}{
		{0, 5 * time.Minute},
		{-1, 5 * time.Minute},
		{30, 30 * time.Second},
	}
	for _, tt := range tests {
		c := NewChecker(nil, nil, config.MonitoringConfig{CheckIntervalSecs: tt.secs}, nil)
		assert.Equal(t, tt.want, c.Interval())
	}
}

func TestChecker_Check(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	clock := clockwork.NewFakeClockAt(now)
	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(failingRuns(), clock, 0), NewAlerter(cfg, clock), cfg, clock)

	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	runs := &mockRuns{listErr: assert.AnError}
	checker := NewChecker(NewCollector(runs, clock, 0), NewAlerter(cfg, clock), cfg, clock)

	assert.Equal(t, 0, checker.Check(context.Background()))
}

func TestChecker_RunTicks(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	clock := clockwork.NewFakeClockAt(now)
	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		CheckIntervalSecs:    60,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(failingRuns(), clock, 0), NewAlerter(cfg, clock), cfg, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return received.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{}
	clock := clockwork.NewFakeClockAt(now)
	checker := NewChecker(NewCollector(&mockRuns{}, clock, 0), NewAlerter(cfg, clock), cfg, clock)

	// Start and immediately cancel to verify it returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
