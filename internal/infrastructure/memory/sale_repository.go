package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/smartpos/sale-engine/internal/domain/sale"
)

type SaleRepository struct {
	mu    sync.RWMutex
	sales map[string]*domain.Sale
}

func NewSaleRepository() *SaleRepository {
	return &SaleRepository{
		sales: make(map[string]*domain.Sale),
	}
}

func (r *SaleRepository) Insert(ctx context.Context, sale *domain.Sale) error {
	_ = ctx
	if sale == nil || sale.ID == "" {
		return fmt.Errorf("sale repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sales[sale.ID]; exists {
		return domain.ErrConflict
	}
	r.sales[sale.ID] = sale.Clone()
	return nil
}

func (r *SaleRepository) Get(ctx context.Context, id string) (*domain.Sale, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.sales[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sale.Clone(), nil
}

func (r *SaleRepository) Update(ctx context.Context, sale *domain.Sale) error {
	_ = ctx
	if sale == nil || sale.ID == "" {
		return fmt.Errorf("sale repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sales[sale.ID]; !ok {
		return domain.ErrNotFound
	}
	r.sales[sale.ID] = sale.Clone()
	return nil
}

// MarkVoided claims the void link under the store lock, so of any number of
// concurrent voiders exactly one wins the claim.
func (r *SaleRepository) MarkVoided(ctx context.Context, saleID, voidID string, at time.Time) (*domain.Sale, error) {
	_ = ctx
	if voidID == "" {
		return nil, fmt.Errorf("sale repository: void id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sales[saleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.Status != domain.StatusCommitted {
		return nil, domain.ErrNotCommitted
	}
	if s.VoidedBy != "" {
		return nil, domain.ErrAlreadyVoided
	}

	s.VoidedBy = voidID
	s.UpdatedAt = at
	return s.Clone(), nil
}
