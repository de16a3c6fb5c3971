package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
)

// ErrCircuitOpen is returned for commands rejected while the breaker is open.
var ErrCircuitOpen = errors.New("redis circuit breaker open")

// BreakerHook implements redis.Hook and stops sending commands to a Redis
// that keeps failing. Rejected commands fail fast with ErrCircuitOpen, which
// the state guard surfaces as a rejected callback.
type BreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*BreakerHook)(nil)

// NewBreakerHook opens after 60% failures over at least 5 commands in a 10s
// window and probes again after 30s.
func NewBreakerHook() *BreakerHook {
	return newBreakerHook(30 * time.Second)
}

func newBreakerHook(delay time.Duration) *BreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
		}).
		Build()
	return &BreakerHook{cb: cb}
}

func (h *BreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("dial %s: %w", addr, ErrCircuitOpen)
		}
		conn, err := next(ctx, network, addr)
		h.record(err)
		return conn, err
	}
}

func (h *BreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("%s: %w", cmd.Name(), ErrCircuitOpen)
			cmd.SetErr(err)
			return err
		}
		err := next(ctx, cmd)
		h.record(err)
		return err
	}
}

func (h *BreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("pipeline: %w", ErrCircuitOpen)
		}
		err := next(ctx, cmds)
		h.record(err)
		return err
	}
}

// State reports the breaker state.
func (h *BreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

// record counts nil replies and caller cancellations as success.
func (h *BreakerHook) record(err error) {
	if err == nil || errors.Is(err, goredis.Nil) || errors.Is(err, context.Canceled) {
		h.cb.RecordSuccess()
		return
	}
	h.cb.RecordError(err)
}
