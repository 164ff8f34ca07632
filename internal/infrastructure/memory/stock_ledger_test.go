package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smartpos/sale-engine/internal/domain/stock"
)

func newLedger(t *testing.T, productID string, onHand, reorderLevel int) *StockLedger {
	t.Helper()
	l := NewStockLedger()
	require.NoError(t, l.InitProduct(context.Background(), productID, onHand, reorderLevel))
	return l
}

func TestReserveCommitDecrementsOnHand(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 2)

	token, err := l.Reserve(ctx, "p1", 4)
	require.NoError(t, err)

	// Reservation holds stock but does not touch on-hand yet.
	item, err := l.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 10, item.OnHand)

	res, err := l.Commit(ctx, token)
	require.NoError(t, err)
	require.Equal(t, 6, res.OnHand)
	require.Equal(t, 4, res.Quantity)
	require.False(t, res.CrossedLowStock)

	item, err = l.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 6, item.OnHand)
}

func TestReserveInsufficientStock(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 5, 0)

	_, err := l.Reserve(ctx, "p1", 6)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "p1", insufficient.ProductID)
	require.Equal(t, 6, insufficient.Requested)
	require.Equal(t, 5, insufficient.Available)
}

func TestReserveCountsActiveReservations(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 0)

	_, err := l.Reserve(ctx, "p1", 6)
	require.NoError(t, err)

	// 4 remain available even though on-hand is still 10.
	_, err = l.Reserve(ctx, "p1", 5)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	_, err = l.Reserve(ctx, "p1", 4)
	require.NoError(t, err)
}

func TestReleaseRestoresAvailability(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 0)

	token, err := l.Reserve(ctx, "p1", 10)
	require.NoError(t, err)

	_, err = l.Reserve(ctx, "p1", 1)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	require.NoError(t, l.Release(ctx, token))

	_, err = l.Reserve(ctx, "p1", 10)
	require.NoError(t, err)

	item, err := l.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 10, item.OnHand, "release never mutates on-hand")
}

func TestCommitIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 8)

	token, err := l.Reserve(ctx, "p1", 4)
	require.NoError(t, err)

	first, err := l.Commit(ctx, token)
	require.NoError(t, err)
	require.Equal(t, 6, first.OnHand)
	require.True(t, first.CrossedLowStock)

	second, err := l.Commit(ctx, token)
	require.NoError(t, err)
	require.Equal(t, first.OnHand, second.OnHand)
	require.False(t, second.CrossedLowStock, "replay must not re-announce the crossing")

	item, err := l.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 6, item.OnHand, "double commit decrements once")
}

func TestReleaseAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 0)

	token, err := l.Reserve(ctx, "p1", 3)
	require.NoError(t, err)
	_, err = l.Commit(ctx, token)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, token))

	item, err := l.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 7, item.OnHand)
}

func TestUnknownTokenAndProduct(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 0)

	_, err := l.Commit(ctx, "no-such-token")
	require.ErrorIs(t, err, stock.ErrUnknownToken)
	require.ErrorIs(t, l.Release(ctx, "no-such-token"), stock.ErrUnknownToken)

	_, err = l.Reserve(ctx, "ghost", 1)
	require.ErrorIs(t, err, stock.ErrNotFound)

	_, err = l.Reserve(ctx, "p1", 0)
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)
}

func TestConcurrentReserveScarceStock(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 0)

	var wg sync.WaitGroup
	outcomes := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := l.Reserve(ctx, "p1", 6)
			if err == nil {
				_, err = l.Commit(ctx, token)
			}
			outcomes <- err
		}()
	}
	wg.Wait()
	close(outcomes)

	var committed, insufficient int
	for err := range outcomes {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, stock.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, committed, "exactly one cart wins the scarce stock")
	require.Equal(t, 1, insufficient)

	item, err := l.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 4, item.OnHand)
}

func TestConcurrentChurnNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 50, 0)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := l.Reserve(ctx, "p1", 3)
			if err != nil {
				return
			}
			if i%2 == 0 {
				_, _ = l.Commit(ctx, token)
			} else {
				_ = l.Release(ctx, token)
			}
		}(i)
	}
	wg.Wait()

	item, err := l.Item(ctx, "p1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, item.OnHand, 0, "on-hand never negative")
	require.LessOrEqual(t, item.OnHand, 50, "on-hand never exceeds start")
	require.Equal(t, 0, (50-item.OnHand)%3, "only whole commits removed stock")
}

func TestLowStockDerivation(t *testing.T) {
	ctx := context.Background()
	l := NewStockLedger()
	require.NoError(t, l.InitProduct(ctx, "plenty", 100, 10))
	require.NoError(t, l.InitProduct(ctx, "edge", 10, 10))
	require.NoError(t, l.InitProduct(ctx, "short", 3, 10))

	low, err := l.IsLowStock(ctx, "edge")
	require.NoError(t, err)
	require.True(t, low, "on-hand equal to reorder level counts as low")

	low, err = l.IsLowStock(ctx, "plenty")
	require.NoError(t, err)
	require.False(t, low)

	ids, err := l.LowStockProducts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"edge", "short"}, ids)
}

func TestIncreaseRestoresStock(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 0)

	token, err := l.Reserve(ctx, "p1", 4)
	require.NoError(t, err)
	_, err = l.Commit(ctx, token)
	require.NoError(t, err)

	onHand, err := l.Increase(ctx, "p1", 4)
	require.NoError(t, err)
	require.Equal(t, 10, onHand)

	_, err = l.Increase(ctx, "p1", 0)
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)
}

func TestInitProductRejectsSeedBelowReservations(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "p1", 10, 0)

	token, err := l.Reserve(ctx, "p1", 6)
	require.NoError(t, err)

	err = l.InitProduct(ctx, "p1", 4, 0)
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)

	// Re-seeding at or above the reserved sum is allowed and the pending
	// commit still cannot push on-hand negative.
	require.NoError(t, l.InitProduct(ctx, "p1", 6, 0))

	res, err := l.Commit(ctx, token)
	require.NoError(t, err)
	require.Equal(t, 0, res.OnHand)
}
