package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Jitter: -1}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("mirror busy"), 421)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(_ context.Context) error {
		calls++
		return Transient(errors.New("always down"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, "always down", err.Error())
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(_ context.Context) error {
		calls++
		return errors.New("550 file not found")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.InitialBackoff = time.Hour
	p.MaxBackoff = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(_ context.Context) error {
			calls++
			return Transient(errors.New("busy"), 0)
		})
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDo_CustomShouldRetryAndOnRetry(t *testing.T) {
	p := fastPolicy()
	p.ShouldRetry = func(err error) bool { return err.Error() == "again" }
	var attempts []int
	p.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	calls := 0
	err := Do(context.Background(), p, func(_ context.Context) error {
		calls++
		return errors.New("again")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_FakeClockDrivesBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := Policy{MaxAttempts: 2, InitialBackoff: time.Minute, Jitter: -1, Clock: clock}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), p, func(_ context.Context) error {
			calls++
			if calls == 1 {
				return Transient(errors.New("busy"), 0)
			}
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	require.NoError(t, <-done)
	assert.Equal(t, 2, calls)
}

func TestDoVal(t *testing.T) {
	calls := 0
	n, err := DoVal(context.Background(), fastPolicy(), func(_ context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, Transient(errors.New("busy"), 0)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = DoVal(context.Background(), fastPolicy(), func(_ context.Context) (int64, error) {
		return 7, errors.New("permanent")
	})
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialBackoff)
	assert.Equal(t, 30*time.Second, p.MaxBackoff)
	assert.Equal(t, 0.25, p.Jitter)
	assert.NotNil(t, p.ShouldRetry)
	assert.NotNil(t, p.Clock)
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Jitter: -1}.withDefaults()
	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.backoff(2))
	assert.Equal(t, time.Second, p.backoff(10))
}

func TestPolicy_BackoffJitterBounds(t *testing.T) {
	p := Policy{InitialBackoff: time.Second, MaxBackoff: time.Minute, Jitter: 0.5}.withDefaults()
	for range 100 {
		d := p.backoff(0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestLogRetry(t *testing.T) {
	assert.NotPanics(t, func() {
		LogRetry("fetcher", "ftp")(1, errors.New("busy"))
	})
}
