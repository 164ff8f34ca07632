package mongo

import (
	"context"
	"fmt"

	domoutbox "github.com/smartpos/sale-engine/internal/domain/outbox"
	domain "github.com/smartpos/sale-engine/internal/domain/sale"
	"github.com/smartpos/sale-engine/internal/observability"
	"github.com/smartpos/sale-engine/internal/observability/logctx"
)

// Worker copies finalized sales into the archive as they are announced on
// the event bus. It reloads each record from the repository rather than
// trusting event payloads, so the archive always matches the store.
type Worker struct {
	archive    *SaleArchive
	sales      domain.Repository
	subscriber domoutbox.Subscriber
	log        observability.Logger
}

func NewWorker(archive *SaleArchive, sales domain.Repository, subscriber domoutbox.Subscriber, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		archive:    archive,
		sales:      sales,
		subscriber: subscriber,
		log:        tel.Logger().With(observability.F("component", "sale_archive_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.archive == nil {
		return
	}
	w.subscriber.Subscribe(domain.SaleCommittedEvent{}.EventName(), w.handleCommitted)
	w.subscriber.Subscribe(domain.SaleVoidedEvent{}.EventName(), w.handleVoided)
}

func (w *Worker) handleCommitted(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domain.SaleCommittedEvent)
	if !ok {
		return nil
	}
	return w.archiveByID(ctx, evt.SaleID)
}

func (w *Worker) handleVoided(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domain.SaleVoidedEvent)
	if !ok {
		return nil
	}
	return w.archiveByID(ctx, evt.VoidID)
}

func (w *Worker) archiveByID(ctx context.Context, saleID string) error {
	logger := logctx.FromOr(ctx, w.log)

	s, err := w.sales.Get(ctx, saleID)
	if err != nil {
		logger.Error("archive_load_failed",
			observability.F("sale_id", saleID),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("archive: load sale %s: %w", saleID, err)
	}

	if err := w.archive.Archive(ctx, s); err != nil {
		logger.Error("archive_write_failed",
			observability.F("sale_id", saleID),
			observability.F("error", err.Error()),
		)
		return err
	}

	logger.Debug("sale_archived", observability.F("sale_id", saleID))
	return nil
}
