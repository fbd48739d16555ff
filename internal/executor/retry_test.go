package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/memebot/internal/domain"
)

func TestRetryPolicy_DeterministicSchedule(t *testing.T) {
	clock := newFakeClock()
	p := RetryPolicy{MaxAttempts: 5, Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 2}

	n, err := p.Do(context.Background(), clock.Sleep, func(context.Context, int) error {
		return context.DeadlineExceeded
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 5, n)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, clock.slept)
}

func TestRetryPolicy_StopsOnPermanentError(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	n, err := DefaultRetryPolicy().Do(context.Background(), clock.Sleep, func(context.Context, int) error {
		calls++
		return errors.New("insufficient funds for gas * price + value")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clock := newFakeClock()

	n, err := DefaultRetryPolicy().Do(ctx, clock.Sleep, func(context.Context, int) error {
		return errors.New("connection refused")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestValue(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	v, n, err := Value(context.Background(), DefaultRetryPolicy(), clock.Sleep, func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, domain.ErrRateLimited
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, n)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial" }
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
		{"deadline", fmt.Errorf("eth_call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"net timeout", timeoutErr{}, true},
		{"http 503", rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, true},
		{"http 400", rpc.HTTPError{StatusCode: 400, Status: "400 Bad Request"}, false},
		{"rate limited", fmt.Errorf("x: %w", domain.ErrRateLimited), true},
		{"header not found", errors.New("header not found"), true},
		{"revert", errors.New("execution reverted: TRANSFER_FAILED"), false},
		{"insufficient funds", errors.New("insufficient funds for gas"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsAlreadySubmitted(t *testing.T) {
	assert.True(t, isAlreadySubmitted(errors.New("already known")))
	assert.True(t, isAlreadySubmitted(errors.New("nonce too low: next nonce 9, tx nonce 8")))
	assert.False(t, isAlreadySubmitted(errors.New("insufficient funds")))
	assert.False(t, isAlreadySubmitted(nil))
}

func TestNonceTracker(t *testing.T) {
	fetches := 0
	tr := newNonceTracker(func(context.Context) (uint64, error) {
		fetches++
		return 5, nil
	})
	ctx := context.Background()

	n, err := tr.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
	n, _ = tr.Peek(ctx)
	assert.Equal(t, uint64(5), n, "peek does not consume")

	tr.Consume(5)
	n, _ = tr.Peek(ctx)
	assert.Equal(t, uint64(6), n)
	assert.Equal(t, 1, fetches)

	tr.Reset()
	n, _ = tr.Peek(ctx)
	assert.Equal(t, uint64(5), n)
	assert.Equal(t, 2, fetches)
}

func TestDedup(t *testing.T) {
	clock := newFakeClock()
	d := NewDedup(time.Minute, clock.Now)

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("b"))

	_ = clock.Sleep(context.Background(), time.Minute)
	assert.False(t, d.IsDuplicate("a"), "expired entries are forgotten")
}
