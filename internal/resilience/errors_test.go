package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"explicit", Transient(errors.New("busy"), 503), true},
		{"wrapped explicit", fmt.Errorf("send: %w", Transient(errors.New("busy"), 503)), true},
		{"connection reset", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"net timeout", fmt.Errorf("read: %w", timeoutErr{}), true},
		{"ftp 421", &textproto.Error{Code: 421, Msg: "too many users"}, true},
		{"ftp 451", fmt.Errorf("retr: %w", &textproto.Error{Code: 451, Msg: "local error"}), true},
		{"ftp 550", &textproto.Error{Code: 550, Msg: "no such file"}, false},
		{"ftp 530", &textproto.Error{Code: 530, Msg: "not logged in"}, false},
		{"eof pattern", errors.New("read tcp: unexpected EOF"), true},
		{"io timeout pattern", errors.New("dial tcp 10.0.0.1:21: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 501} {
		assert.False(t, IsTransientStatus(code), "status %d", code)
	}
	assert.True(t, IsTransientStatus(http.StatusServiceUnavailable))
}

func TestTransientError(t *testing.T) {
	inner := errors.New("mirror busy")
	te := Transient(inner, 421)
	assert.Equal(t, "mirror busy", te.Error())
	assert.Equal(t, 421, te.Code)
	assert.ErrorIs(t, te, inner)
}
