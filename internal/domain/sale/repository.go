package sale

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, sale *Sale) error
	Get(ctx context.Context, id string) (*Sale, error)
	Update(ctx context.Context, sale *Sale) error

	// MarkVoided links a committed, not-yet-voided sale to its compensating
	// record in one atomic step and returns the updated original. It fails
	// with ErrNotCommitted or ErrAlreadyVoided when the stored record no
	// longer qualifies, so concurrent voids of the same sale resolve to a
	// single winner.
	MarkVoided(ctx context.Context, saleID, voidID string, at time.Time) (*Sale, error)
}
