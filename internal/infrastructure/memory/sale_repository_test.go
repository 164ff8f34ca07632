package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/smartpos/sale-engine/internal/domain/sale"
)

func committedSale(id string) *domain.Sale {
	now := time.Now().UTC()
	return &domain.Sale{
		ID:        id,
		CashierID: "cashier-1",
		Status:    domain.StatusCommitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMarkVoidedLinksCommittedSale(t *testing.T) {
	ctx := context.Background()
	repo := NewSaleRepository()
	require.NoError(t, repo.Insert(ctx, committedSale("s1")))

	at := time.Now().UTC()
	original, err := repo.MarkVoided(ctx, "s1", "v1", at)
	require.NoError(t, err)
	require.Equal(t, "v1", original.VoidedBy)
	require.Equal(t, domain.StatusCommitted, original.Status)

	stored, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "v1", stored.VoidedBy)
}

func TestMarkVoidedRejectsNonQualifyingSales(t *testing.T) {
	ctx := context.Background()
	repo := NewSaleRepository()

	_, err := repo.MarkVoided(ctx, "ghost", "v1", time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)

	pending := committedSale("s-pending")
	pending.Status = domain.StatusPending
	require.NoError(t, repo.Insert(ctx, pending))
	_, err = repo.MarkVoided(ctx, "s-pending", "v1", time.Now())
	require.ErrorIs(t, err, domain.ErrNotCommitted)

	require.NoError(t, repo.Insert(ctx, committedSale("s1")))
	_, err = repo.MarkVoided(ctx, "s1", "v1", time.Now())
	require.NoError(t, err)
	_, err = repo.MarkVoided(ctx, "s1", "v2", time.Now())
	require.ErrorIs(t, err, domain.ErrAlreadyVoided)
}

func TestMarkVoidedConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewSaleRepository()
	require.NoError(t, repo.Insert(ctx, committedSale("s1")))

	const claimers = 16
	start := make(chan struct{})
	errs := make([]error, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = repo.MarkVoided(ctx, "s1", "v1", time.Now())
		}(i)
	}
	close(start)
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, domain.ErrAlreadyVoided)
		}
	}
	require.Equal(t, 1, won)
}
