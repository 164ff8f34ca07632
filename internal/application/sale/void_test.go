package sale

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	domcart "github.com/smartpos/sale-engine/internal/domain/cart"
	dompayment "github.com/smartpos/sale-engine/internal/domain/payment"
	domain "github.com/smartpos/sale-engine/internal/domain/sale"
	"github.com/smartpos/sale-engine/internal/infrastructure/id"
	"github.com/smartpos/sale-engine/internal/pkg/money"
)

type voidFixture struct {
	*submitFixture
	void *VoidUseCase
}

func newVoidFixture(t *testing.T) *voidFixture {
	t.Helper()
	f := newSubmitFixture(t, approveAll(), nil)
	return &voidFixture{
		submitFixture: f,
		void:          NewVoidUseCase(f.sales, f.ledger, f.publisher, id.NewUUIDGenerator(), nil),
	}
}

func (f *voidFixture) commitSale(t *testing.T, cartID string) *domain.Sale {
	t.Helper()
	result, err := f.uc.Execute(context.Background(), SubmitInput{
		CartID:   cartID,
		Method:   dompayment.MethodCash,
		Deadline: futureDeadline(),
	})
	require.NoError(t, err)
	return result.Sale
}

func TestVoidRestoresStockAndLinksRecords(t *testing.T) {
	ctx := context.Background()
	f := newVoidFixture(t)
	f.initStock(t, "p1", 10, 0)
	f.addCart(t, "cart-1", domcart.Line{ProductID: "p1", ProductName: "Sugar", Quantity: 4, UnitPrice: money.MustParse("145.50")})

	sale := f.commitSale(t, "cart-1")

	item, err := f.ledger.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 6, item.OnHand)

	result, err := f.void.Execute(ctx, VoidInput{SaleID: sale.ID, Reason: "customer return", ActorID: "manager-1"})
	require.NoError(t, err)

	void := result.Void
	require.Equal(t, domain.StatusVoided, void.Status)
	require.Equal(t, sale.ID, void.VoidOf)
	require.Equal(t, "customer return", void.VoidReason)
	require.True(t, void.Total.Equal(sale.Total))
	require.Equal(t, sale.Lines, void.Lines, "compensating record copies the immutable lines")

	// Quantity-on-hand is back to its pre-sale value.
	item, err = f.ledger.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 10, item.OnHand)

	// The original record keeps its committed status; only the link is added.
	original, err := f.sales.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCommitted, original.Status)
	require.Equal(t, void.ID, original.VoidedBy)

	require.Len(t, f.publisher.named("sale.voided"), 1)
}

func TestVoidTwiceRejected(t *testing.T) {
	ctx := context.Background()
	f := newVoidFixture(t)
	f.initStock(t, "p1", 10, 0)
	f.addCart(t, "cart-1", domcart.Line{ProductID: "p1", Quantity: 2, UnitPrice: money.MustParse("10.00")})

	sale := f.commitSale(t, "cart-1")

	_, err := f.void.Execute(ctx, VoidInput{SaleID: sale.ID, Reason: "first"})
	require.NoError(t, err)

	_, err = f.void.Execute(ctx, VoidInput{SaleID: sale.ID, Reason: "second"})
	require.ErrorIs(t, err, domain.ErrAlreadyVoided)

	// Double void must not double-restore stock.
	item, err := f.ledger.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 10, item.OnHand)
}

func TestConcurrentVoidsRestoreStockOnce(t *testing.T) {
	ctx := context.Background()
	f := newVoidFixture(t)
	f.initStock(t, "p1", 10, 0)
	f.addCart(t, "cart-1", domcart.Line{ProductID: "p1", Quantity: 4, UnitPrice: money.MustParse("25.00")})

	sale := f.commitSale(t, "cart-1")

	const voiders = 4
	start := make(chan struct{})
	errs := make([]error, voiders)
	var wg sync.WaitGroup
	for i := 0; i < voiders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.void.Execute(ctx, VoidInput{SaleID: sale.ID, Reason: "race"})
		}(i)
	}
	close(start)
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrAlreadyVoided)
		}
	}
	require.Equal(t, 1, succeeded, "exactly one void claims the sale")

	// On-hand lands at exactly its pre-sale value, never above it.
	item, err := f.ledger.Item(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 10, item.OnHand)

	// One compensating record, one netting event.
	original, err := f.sales.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.NotEmpty(t, original.VoidedBy)
	require.Len(t, f.publisher.named("sale.voided"), 1)
}

func TestVoidRequiresCommittedSale(t *testing.T) {
	ctx := context.Background()
	f := newVoidFixture(t)

	_, err := f.void.Execute(ctx, VoidInput{SaleID: "ghost", Reason: "x"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	pending := &domain.Sale{ID: "s-pending", Status: domain.StatusPending}
	require.NoError(t, f.sales.Insert(ctx, pending))

	_, err = f.void.Execute(ctx, VoidInput{SaleID: "s-pending", Reason: "x"})
	require.ErrorIs(t, err, domain.ErrNotCommitted)
}

func TestVoidRecordCannotItselfBeVoided(t *testing.T) {
	ctx := context.Background()
	f := newVoidFixture(t)
	f.initStock(t, "p1", 10, 0)
	f.addCart(t, "cart-1", domcart.Line{ProductID: "p1", Quantity: 2, UnitPrice: money.MustParse("10.00")})

	sale := f.commitSale(t, "cart-1")
	result, err := f.void.Execute(ctx, VoidInput{SaleID: sale.ID, Reason: "return"})
	require.NoError(t, err)

	_, err = f.void.Execute(ctx, VoidInput{SaleID: result.Void.ID, Reason: "again"})
	require.ErrorIs(t, err, domain.ErrNotCommitted)
}
