package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAddLineMergesSameProduct(t *testing.T) {
	c := New("c1", "cashier-1")

	require.NoError(t, c.AddLine("p1", "Sugar 1kg", 2, decimal.RequireFromString("145.50")))
	require.NoError(t, c.AddLine("p1", "Sugar 1kg", 3, decimal.RequireFromString("150.00")))

	require.Len(t, c.Lines, 1)
	require.Equal(t, 5, c.Lines[0].Quantity)
	// The price snapshotted at first add wins on merge.
	require.True(t, c.Lines[0].UnitPrice.Equal(decimal.RequireFromString("145.50")))
}

func TestAddLineValidation(t *testing.T) {
	c := New("c1", "cashier-1")
	require.ErrorIs(t, c.AddLine("p1", "x", 0, decimal.Zero), ErrInvalidQuantity)
	require.ErrorIs(t, c.AddLine("p1", "x", -2, decimal.Zero), ErrInvalidQuantity)
}

func TestRemoveLine(t *testing.T) {
	c := New("c1", "cashier-1")
	require.NoError(t, c.AddLine("p1", "a", 1, decimal.NewFromInt(10)))
	require.NoError(t, c.AddLine("p2", "b", 1, decimal.NewFromInt(20)))

	require.NoError(t, c.RemoveLine("p1"))
	require.Len(t, c.Lines, 1)
	require.Equal(t, "p2", c.Lines[0].ProductID)

	require.ErrorIs(t, c.RemoveLine("p1"), ErrLineNotFound)
}

func TestSubmittedCartIsFrozen(t *testing.T) {
	c := New("c1", "cashier-1")
	require.NoError(t, c.AddLine("p1", "a", 1, decimal.NewFromInt(10)))
	c.MarkSubmitted()

	require.ErrorIs(t, c.AddLine("p2", "b", 1, decimal.NewFromInt(5)), ErrAlreadySubmitted)
	require.ErrorIs(t, c.RemoveLine("p1"), ErrAlreadySubmitted)
}

func TestCloneIsIndependent(t *testing.T) {
	c := New("c1", "cashier-1")
	require.NoError(t, c.AddLine("p1", "a", 1, decimal.NewFromInt(10)))

	clone := c.Clone()
	require.NoError(t, clone.AddLine("p2", "b", 1, decimal.NewFromInt(5)))

	require.Len(t, c.Lines, 1)
	require.Len(t, clone.Lines, 2)
}
