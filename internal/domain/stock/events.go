package stock

import "time"

// LowStockEvent is emitted when a commit first moves a product at or below
// its reorder level. The alert is an event, not stored state.
type LowStockEvent struct {
	ProductID    string
	OnHand       int
	ReorderLevel int
	OccurredAt   time.Time
}

func (LowStockEvent) EventName() string { return "stock.low" }

func NewLowStockEvent(productID string, onHand, reorderLevel int) LowStockEvent {
	return LowStockEvent{
		ProductID:    productID,
		OnHand:       onHand,
		ReorderLevel: reorderLevel,
		OccurredAt:   time.Now().UTC(),
	}
}
