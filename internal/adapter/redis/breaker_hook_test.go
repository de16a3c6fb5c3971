package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnRefused = errors.New("connection refused")

func runCommand(hook *BreakerHook, err error) error {
	ctx := context.Background()
	process := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		return err
	})
	return process(ctx, goredis.NewBoolCmd(ctx, "set", "k", 1, "nx"))
}

func TestBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := NewBreakerHook()

	for range 10 {
		assert.NoError(t, runCommand(hook, nil))
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestBreakerHook_NilReplyIsSuccess(t *testing.T) {
	hook := NewBreakerHook()

	for range 10 {
		assert.ErrorIs(t, runCommand(hook, goredis.Nil), goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestBreakerHook_OpensAfterSustainedFailures(t *testing.T) {
	hook := NewBreakerHook()

	for range 5 {
		err := runCommand(hook, errConnRefused)
		assert.ErrorIs(t, err, errConnRefused)
	}
	assert.Equal(t, circuitbreaker.OpenState, hook.State())

	called := false
	ctx := context.Background()
	cmd := goredis.NewBoolCmd(ctx, "set", "k", 1, "nx")
	err := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		called = true
		return nil
	})(ctx, cmd)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, cmd.Err(), ErrCircuitOpen)
	assert.False(t, called, "open breaker must not reach redis")
}

func TestBreakerHook_RecoversAfterDelay(t *testing.T) {
	hook := newBreakerHook(20 * time.Millisecond)

	for range 5 {
		_ = runCommand(hook, errConnRefused)
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, runCommand(hook, nil))
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestBreakerHook_PipelineFailsFastWhenOpen(t *testing.T) {
	hook := NewBreakerHook()
	for range 5 {
		_ = runCommand(hook, errConnRefused)
	}

	pipeline := hook.ProcessPipelineHook(func(ctx context.Context, cmds []goredis.Cmder) error {
		return nil
	})
	assert.ErrorIs(t, pipeline(context.Background(), nil), ErrCircuitOpen)
}
