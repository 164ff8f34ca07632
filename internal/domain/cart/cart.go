package cart

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("cart: not found")
	ErrInvalidQuantity  = errors.New("cart: quantity must be greater than zero")
	ErrLineNotFound     = errors.New("cart: line not found")
	ErrEmpty            = errors.New("cart: no lines")
	ErrAlreadySubmitted = errors.New("cart: already submitted")
)

// Line snapshots the unit price at add time, decoupling sale pricing from
// later catalog edits.
type Line struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Cart is owned exclusively by one in-progress sale and is mutable only
// before submit.
type Cart struct {
	ID        string
	CashierID string
	Lines     []Line
	Submitted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id, cashierID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		ID:        id,
		CashierID: cashierID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddLine appends a line, merging with an existing line for the same product
// by summing quantities. The existing snapshot price wins on merge.
func (c *Cart) AddLine(productID, productName string, qty int, unitPrice decimal.Decimal) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if c.Submitted {
		return ErrAlreadySubmitted
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity += qty
			c.touch()
			return nil
		}
	}
	c.Lines = append(c.Lines, Line{
		ProductID:   productID,
		ProductName: productName,
		Quantity:    qty,
		UnitPrice:   unitPrice,
	})
	c.touch()
	return nil
}

// RemoveLine drops the line for the given product.
func (c *Cart) RemoveLine(productID string) error {
	if c.Submitted {
		return ErrAlreadySubmitted
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.touch()
			return nil
		}
	}
	return ErrLineNotFound
}

// MarkSubmitted freezes the cart once its sale has committed.
func (c *Cart) MarkSubmitted() {
	c.Submitted = true
	c.touch()
}

func (c *Cart) Clone() *Cart {
	clone := *c
	clone.Lines = append([]Line(nil), c.Lines...)
	return &clone
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}

type Repository interface {
	Save(ctx context.Context, cart *Cart) error
	Get(ctx context.Context, id string) (*Cart, error)
	Update(ctx context.Context, cart *Cart) error
}
