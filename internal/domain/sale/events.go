package sale

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/smartpos/sale-engine/internal/domain/payment"
)

// SaleCommittedEvent is published after the sale record is durably written.
// Aggregation and archival consume it; pending sales never reach them.
type SaleCommittedEvent struct {
	SaleID     string
	CashierID  string
	Method     payment.Method
	Total      decimal.Decimal
	Lines      []Line
	SaleDate   time.Time
	OccurredAt time.Time
}

func (SaleCommittedEvent) EventName() string { return "sale.committed" }

func NewSaleCommittedEvent(s *Sale) SaleCommittedEvent {
	return SaleCommittedEvent{
		SaleID:     s.ID,
		CashierID:  s.CashierID,
		Method:     s.Method,
		Total:      s.Total,
		Lines:      append([]Line(nil), s.Lines...),
		SaleDate:   s.Date(),
		OccurredAt: time.Now().UTC(),
	}
}

// SaleVoidedEvent carries the compensating record plus the original sale's
// aggregation date so rollups net back to their pre-sale values.
type SaleVoidedEvent struct {
	VoidID     string
	SaleID     string
	Reason     string
	Method     payment.Method
	Total      decimal.Decimal
	Lines      []Line
	SaleDate   time.Time
	OccurredAt time.Time
}

func (SaleVoidedEvent) EventName() string { return "sale.voided" }

func NewSaleVoidedEvent(void *Sale, original *Sale) SaleVoidedEvent {
	return SaleVoidedEvent{
		VoidID:     void.ID,
		SaleID:     original.ID,
		Reason:     void.VoidReason,
		Method:     original.Method,
		Total:      original.Total,
		Lines:      append([]Line(nil), original.Lines...),
		SaleDate:   original.Date(),
		OccurredAt: time.Now().UTC(),
	}
}
