package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	domain "github.com/smartpos/sale-engine/internal/domain/payment"
	"github.com/smartpos/sale-engine/internal/observability"
)

var ErrCircuitOpen = errors.New("payment: gateway circuit open")

// BreakerAuthorizer wraps an Authorizer with a circuit breaker so a flapping
// gateway fails sales fast instead of tying up reservations until timeout.
// Declines and timeouts are gateway answers, not breaker failures; only
// transport-level errors trip it.
type BreakerAuthorizer struct {
	next domain.Authorizer
	cb   *gobreaker.CircuitBreaker
}

type BreakerConfig struct {
	Name                string
	MaxRequests         uint32
	ConsecutiveFailures uint32
}

func NewBreakerAuthorizer(next domain.Authorizer, cfg BreakerConfig, logger observability.Logger) *BreakerAuthorizer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	name := cfg.Name
	if name == "" {
		name = "payment-gateway"
	}
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment_breaker_state_changed",
				observability.F("breaker", name),
				observability.F("from", from.String()),
				observability.F("to", to.String()),
			)
		},
	}

	return &BreakerAuthorizer{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerAuthorizer) Authorize(ctx context.Context, amount decimal.Decimal, method domain.Method) (domain.Result, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Authorize(ctx, amount, method)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Result{}, ErrCircuitOpen
		}
		return domain.Result{}, err
	}
	return out.(domain.Result), nil
}
