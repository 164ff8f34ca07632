package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/smartpos/sale-engine/internal/domain/cart"
	domcatalog "github.com/smartpos/sale-engine/internal/domain/catalog"
	"github.com/smartpos/sale-engine/internal/infrastructure/id"
	"github.com/smartpos/sale-engine/internal/infrastructure/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Catalog) {
	t.Helper()

	catalog := memory.NewCatalog()
	svc := NewService(
		memory.NewCartRepository(),
		catalog,
		id.NewUUIDGenerator(),
		Calculator{MinorUnits: 2, TaxRate: d("0.16")},
		nil,
	)
	return svc, catalog
}

func putProduct(t *testing.T, catalog *memory.Catalog, productID, name, price string, active bool) {
	t.Helper()
	require.NoError(t, catalog.Put(context.Background(), &domcatalog.Product{
		ID:        productID,
		Name:      name,
		UnitPrice: d(price),
		Active:    active,
		UpdatedAt: time.Now().UTC(),
	}))
}

func TestBeginSaleRequiresCashier(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.BeginSale(context.Background(), "")
	require.Error(t, err)

	c, err := svc.BeginSale(context.Background(), "cashier-7")
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.Equal(t, "cashier-7", c.CashierID)
}

func TestAddLineSnapshotsCatalogPrice(t *testing.T) {
	ctx := context.Background()
	svc, catalog := newTestService(t)
	putProduct(t, catalog, "p1", "Cooking Oil 1L", "320.00", true)

	c, err := svc.BeginSale(ctx, "cashier-1")
	require.NoError(t, err)

	c, err = svc.AddLine(ctx, c.ID, "p1", 2)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	require.True(t, c.Lines[0].UnitPrice.Equal(d("320.00")))
	require.Equal(t, "Cooking Oil 1L", c.Lines[0].ProductName)

	// A later catalog edit must not re-price lines already in the cart.
	putProduct(t, catalog, "p1", "Cooking Oil 1L", "999.00", true)
	c, err = svc.AddLine(ctx, c.ID, "p1", 1)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	require.Equal(t, 3, c.Lines[0].Quantity)
	require.True(t, c.Lines[0].UnitPrice.Equal(d("320.00")), "merge keeps the original snapshot price")
}

func TestAddLineRejectsUnknownOrInactiveProduct(t *testing.T) {
	ctx := context.Background()
	svc, catalog := newTestService(t)
	putProduct(t, catalog, "retired", "Old Item", "10.00", false)

	c, err := svc.BeginSale(ctx, "cashier-1")
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, c.ID, "ghost", 1)
	require.ErrorIs(t, err, domcatalog.ErrProductNotFound)

	_, err = svc.AddLine(ctx, c.ID, "retired", 1)
	require.ErrorIs(t, err, domcatalog.ErrProductNotFound)

	_, err = svc.AddLine(ctx, c.ID, "ghost", 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestAddLineUnknownCart(t *testing.T) {
	svc, catalog := newTestService(t)
	putProduct(t, catalog, "p1", "x", "1.00", true)

	_, err := svc.AddLine(context.Background(), "no-such-cart", "p1", 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveLineRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, catalog := newTestService(t)
	putProduct(t, catalog, "p1", "a", "10.00", true)
	putProduct(t, catalog, "p2", "b", "20.00", true)

	c, err := svc.BeginSale(ctx, "cashier-1")
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, c.ID, "p1", 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, c.ID, "p2", 1)
	require.NoError(t, err)

	c, err = svc.RemoveLine(ctx, c.ID, "p1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)

	_, err = svc.RemoveLine(ctx, c.ID, "p1")
	require.ErrorIs(t, err, domain.ErrLineNotFound)
}

func TestComputeTotal(t *testing.T) {
	ctx := context.Background()
	svc, catalog := newTestService(t)
	putProduct(t, catalog, "p1", "a", "100.00", true)

	c, err := svc.BeginSale(ctx, "cashier-1")
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, c.ID, "p1", 2)
	require.NoError(t, err)

	totals, err := svc.ComputeTotal(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, totals.Subtotal.Equal(d("200")))
	require.True(t, totals.Total.Equal(d("232.00")), "16%% tax applied, got %s", totals.Total)

	totals, err = svc.ComputeTotal(ctx, c.ID, PercentOff{Percent: d("50")})
	require.NoError(t, err)
	require.True(t, totals.Total.Equal(d("116.00")), "got %s", totals.Total)
}
