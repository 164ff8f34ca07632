package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/smartpos/sale-engine/internal/domain/payment"
)

// Simulator approves or declines authorizations at a configured rate. Cash is
// always approved. It honors the caller's deadline the way a remote gateway
// would: an expired context yields a timed-out result.
type Simulator struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	latency     time.Duration
}

func NewSimulator(successRate float64, latency time.Duration) *Simulator {
	return &Simulator{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
		latency:     latency,
	}
}

func (s *Simulator) Authorize(ctx context.Context, amount decimal.Decimal, method domain.Method) (domain.Result, error) {
	_ = amount

	if err := ctx.Err(); err != nil {
		return domain.Result{Outcome: domain.OutcomeTimedOut}, nil
	}

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return domain.Result{Outcome: domain.OutcomeTimedOut}, nil
		}
	}

	if method == domain.MethodCash {
		return domain.Result{Outcome: domain.OutcomeApproved, Reference: reference()}, nil
	}

	s.mu.Lock()
	approved := s.random.Float64() <= s.successRate
	s.mu.Unlock()

	if !approved {
		return domain.Result{Outcome: domain.OutcomeDeclined}, nil
	}
	return domain.Result{Outcome: domain.OutcomeApproved, Reference: reference()}, nil
}

func reference() string {
	return "SIM-" + uuid.NewString()
}
