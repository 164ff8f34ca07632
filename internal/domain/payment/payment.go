package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Method is the tender used for a sale. Split tenders are out of scope.
type Method string

const (
	MethodCash  Method = "cash"
	MethodMpesa Method = "mpesa"
	MethodCard  Method = "card"
)

var ErrUnknownMethod = errors.New("payment: unknown payment method")

// ParseMethod validates a wire-level method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodCash, MethodMpesa, MethodCard:
		return Method(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Outcome is the abstract authorization result the engine consumes. Gateway
// wire protocols (M-Pesa, card) are the adapter's concern.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeDeclined Outcome = "declined"
	OutcomeTimedOut Outcome = "timed_out"
)

// Result carries the outcome and, when approved, the gateway reference
// recorded on the committed sale.
type Result struct {
	Outcome   Outcome
	Reference string
}

// Authorizer is the port to the external payment collaborator. The call may
// block; the coordinator bounds it with the caller's deadline and never holds
// a ledger lock while awaiting it.
type Authorizer interface {
	Authorize(ctx context.Context, amount decimal.Decimal, method Method) (Result, error)
}
