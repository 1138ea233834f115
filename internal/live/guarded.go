package live

import (
	"context"

	"github.com/lexiqai/live-voice/internal/resilience"
)

// GuardedDialer passes every Dial through a circuit breaker so a rejecting
// endpoint is not hammered by repeated session starts. A rejected attempt
// returns resilience.ErrCircuitOpen without dialing.
type GuardedDialer struct {
	next    Dialer
	breaker *resilience.CircuitBreaker
}

func NewGuardedDialer(next Dialer, breaker *resilience.CircuitBreaker) *GuardedDialer {
	return &GuardedDialer{next: next, breaker: breaker}
}

func (g *GuardedDialer) Dial(ctx context.Context, setup Setup) (Transport, error) {
	var t Transport
	err := g.breaker.Call(func() error {
		var err error
		t, err = g.next.Dial(ctx, setup)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
