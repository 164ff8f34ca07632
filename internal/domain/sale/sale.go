package sale

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smartpos/sale-engine/internal/domain/payment"
)

var (
	ErrNotFound        = errors.New("sale: not found")
	ErrConflict        = errors.New("sale: already exists")
	ErrNotCommitted    = errors.New("sale: not committed")
	ErrAlreadyVoided   = errors.New("sale: already voided")
	ErrPaymentDeclined = errors.New("sale: payment declined")
	ErrPaymentTimedOut = errors.New("sale: payment timed out")
	ErrCommitFailure   = errors.New("sale: commit failure")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
	StatusVoided    Status = "voided"
)

// Line is copied from the cart at commit and never mutated afterwards.
type Line struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Sale is append-only once committed. A void produces a separate compensating
// record linked through VoidOf; the original lines stay untouched.
type Sale struct {
	ID        string
	CashierID string
	Lines     []Line
	Method    payment.Method
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	Reference string
	Status    Status

	// VoidOf links a compensating record to the sale it reverses.
	VoidOf     string
	VoidReason string
	// VoidedBy links a committed sale to its compensating record.
	VoidedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Sale) Clone() *Sale {
	clone := *s
	clone.Lines = append([]Line(nil), s.Lines...)
	return &clone
}

// Date is the aggregation day of the sale in UTC.
func (s *Sale) Date() time.Time {
	return s.CreatedAt.UTC().Truncate(24 * time.Hour)
}
