package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartpos/sale-engine/internal/domain/stock"
)

// StockLedger is the in-memory authority for quantity-on-hand. Each product
// has its own lock, so sales on different products never block each other;
// reserve/commit/release on one product are serialized in arrival order.
type StockLedger struct {
	mu       sync.RWMutex
	products map[string]*productState

	tokensMu sync.RWMutex
	tokens   map[string]string // reservation token -> product ID
}

type productState struct {
	mu        sync.Mutex
	item      stock.Item
	reserved  int // sum of active reservation quantities
	active    map[string]stock.Reservation
	committed map[string]stock.CommitResult
}

func NewStockLedger() *StockLedger {
	return &StockLedger{
		products: make(map[string]*productState),
		tokens:   make(map[string]string),
	}
}

func (l *StockLedger) InitProduct(ctx context.Context, productID string, onHand, reorderLevel int) error {
	_ = ctx
	if onHand < 0 {
		return stock.ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.products[productID]; ok {
		p.mu.Lock()
		defer p.mu.Unlock()
		// Re-seeding below the outstanding reservations would let a later
		// commit drive on-hand negative.
		if onHand < p.reserved {
			return stock.ErrInvalidQuantity
		}
		p.item.OnHand = onHand
		p.item.ReorderLevel = reorderLevel
		p.item.UpdatedAt = time.Now().UTC()
		return nil
	}

	l.products[productID] = &productState{
		item: stock.Item{
			ProductID:    productID,
			OnHand:       onHand,
			ReorderLevel: reorderLevel,
			UpdatedAt:    time.Now().UTC(),
		},
		active:    make(map[string]stock.Reservation),
		committed: make(map[string]stock.CommitResult),
	}
	return nil
}

func (l *StockLedger) Reserve(ctx context.Context, productID string, qty int) (string, error) {
	_ = ctx
	if qty <= 0 {
		return "", stock.ErrInvalidQuantity
	}

	p, err := l.product(productID)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.item.OnHand - p.reserved
	if available < qty {
		return "", &stock.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: available,
		}
	}

	token := uuid.NewString()
	p.active[token] = stock.Reservation{
		Token:     token,
		ProductID: productID,
		Quantity:  qty,
		CreatedAt: time.Now().UTC(),
	}
	p.reserved += qty

	l.tokensMu.Lock()
	l.tokens[token] = productID
	l.tokensMu.Unlock()

	return token, nil
}

func (l *StockLedger) Commit(ctx context.Context, token string) (stock.CommitResult, error) {
	_ = ctx

	p, err := l.productForToken(token)
	if err != nil {
		return stock.CommitResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if res, ok := p.committed[token]; ok {
		// Retry after timeout: replay without re-decrementing and without
		// re-announcing the low-stock crossing.
		res.CrossedLowStock = false
		return res, nil
	}

	r, ok := p.active[token]
	if !ok {
		return stock.CommitResult{}, stock.ErrUnknownToken
	}

	wasLow := p.item.IsLowStock()
	p.item.OnHand -= r.Quantity
	p.item.UpdatedAt = time.Now().UTC()
	p.reserved -= r.Quantity
	delete(p.active, token)

	result := stock.CommitResult{
		ProductID:       r.ProductID,
		Quantity:        r.Quantity,
		OnHand:          p.item.OnHand,
		CrossedLowStock: !wasLow && p.item.IsLowStock(),
	}
	p.committed[token] = result
	return result, nil
}

func (l *StockLedger) Release(ctx context.Context, token string) error {
	_ = ctx

	p, err := l.productForToken(token)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.committed[token]; ok {
		return nil
	}

	r, ok := p.active[token]
	if !ok {
		return stock.ErrUnknownToken
	}

	p.reserved -= r.Quantity
	delete(p.active, token)

	l.tokensMu.Lock()
	delete(l.tokens, token)
	l.tokensMu.Unlock()

	return nil
}

func (l *StockLedger) Increase(ctx context.Context, productID string, qty int) (int, error) {
	_ = ctx
	if qty <= 0 {
		return 0, stock.ErrInvalidQuantity
	}

	p, err := l.product(productID)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.item.OnHand += qty
	p.item.UpdatedAt = time.Now().UTC()
	return p.item.OnHand, nil
}

func (l *StockLedger) Item(ctx context.Context, productID string) (stock.Item, error) {
	_ = ctx

	p, err := l.product(productID)
	if err != nil {
		return stock.Item{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.item, nil
}

func (l *StockLedger) IsLowStock(ctx context.Context, productID string) (bool, error) {
	item, err := l.Item(ctx, productID)
	if err != nil {
		return false, err
	}
	return item.IsLowStock(), nil
}

func (l *StockLedger) LowStockProducts(ctx context.Context) ([]string, error) {
	_ = ctx

	l.mu.RLock()
	states := make([]*productState, 0, len(l.products))
	for _, p := range l.products {
		states = append(states, p)
	}
	l.mu.RUnlock()

	var out []string
	for _, p := range states {
		p.mu.Lock()
		if p.item.IsLowStock() {
			out = append(out, p.item.ProductID)
		}
		p.mu.Unlock()
	}
	sort.Strings(out)
	return out, nil
}

func (l *StockLedger) product(productID string) (*productState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.products[productID]
	if !ok {
		return nil, stock.ErrNotFound
	}
	return p, nil
}

func (l *StockLedger) productForToken(token string) (*productState, error) {
	l.tokensMu.RLock()
	productID, ok := l.tokens[token]
	l.tokensMu.RUnlock()
	if !ok {
		return nil, stock.ErrUnknownToken
	}
	return l.product(productID)
}
