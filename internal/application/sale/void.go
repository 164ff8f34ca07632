package sale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/smartpos/sale-engine/internal/domain/outbox"
	domain "github.com/smartpos/sale-engine/internal/domain/sale"
	domstock "github.com/smartpos/sale-engine/internal/domain/stock"
	"github.com/smartpos/sale-engine/internal/observability"
	"github.com/smartpos/sale-engine/internal/observability/logctx"
)

const useCaseVoid = "sale.void"

// VoidUseCase reverses a committed sale with a compensating record and a
// compensating stock increment. The original sale and its lines are never
// edited; only the link to the void record is added, preserving audit history.
type VoidUseCase struct {
	sales     domain.Repository
	ledger    domstock.Ledger
	publisher domoutbox.Publisher
	idGen     IDGenerator
	tel       observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewVoidUseCase(
	sales domain.Repository,
	ledger domstock.Ledger,
	publisher domoutbox.Publisher,
	idGen IDGenerator,
	tel observability.Observability,
) *VoidUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metricsProvider := tel.Metrics()

	return &VoidUseCase{
		sales:        sales,
		ledger:       ledger,
		publisher:    publisher,
		idGen:        idGen,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", saleService)),
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
	}
}

type VoidInput struct {
	SaleID string
	Reason string
	// ActorID is the authorized caller recorded on the compensating record.
	ActorID string
}

type VoidResult struct {
	Void *domain.Sale
}

func (uc *VoidUseCase) Execute(ctx context.Context, cmd VoidInput) (_ *VoidResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseVoid),
		observability.F("sale_id", cmd.SaleID),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"VoidSale",
		attribute.String("use_case", useCaseVoid),
		attribute.String("sale.id", cmd.SaleID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var voidID string

	defer func() {
		lat := time.Since(start).Seconds()

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}

		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseVoid),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat,
			observability.L("use_case", useCaseVoid),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if voidID != "" {
			fields = append(fields, observability.F("void_id", voidID))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	// Claiming the void link is the serialization point: the repository
	// links atomically, so of two concurrent voids only one gets past here.
	now := time.Now().UTC()
	voidID = uc.idGen.NewID()
	original, err := uc.sales.MarkVoided(ctx, cmd.SaleID, voidID, now)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotCommitted):
			outcome, statusText = "error", "SALE_NOT_COMMITTED"
		case errors.Is(err, domain.ErrAlreadyVoided):
			outcome, statusText = "error", "SALE_ALREADY_VOIDED"
		default:
			outcome, statusText = "error", "SALE_NOT_FOUND"
		}
		voidID = ""
		return nil, err
	}

	void := &domain.Sale{
		ID:         voidID,
		CashierID:  cmd.ActorID,
		Lines:      append([]domain.Line(nil), original.Lines...),
		Method:     original.Method,
		Subtotal:   original.Subtotal,
		Discount:   original.Discount,
		Tax:        original.Tax,
		Total:      original.Total,
		Status:     domain.StatusVoided,
		VoidOf:     original.ID,
		VoidReason: cmd.Reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := uc.sales.Insert(ctx, void); err != nil {
		// Give the claim back so a retry can void the sale.
		original.VoidedBy = ""
		original.UpdatedAt = time.Now().UTC()
		if uerr := uc.sales.Update(ctx, original); uerr != nil {
			logger.Error("void_claim_rollback_failed",
				observability.F("sale_id", original.ID),
				observability.F("error", uerr.Error()),
			)
		}
		outcome, statusText = "error", "VOID_PERSIST_FAILED"
		voidID = ""
		return nil, fmt.Errorf("sale: persist void record: %w", err)
	}

	// Compensating increment per original line; the ledger never saw a
	// negative-stock state at any point of this path.
	for _, line := range original.Lines {
		if _, ierr := uc.ledger.Increase(ctx, line.ProductID, line.Quantity); ierr != nil {
			logger.Error("void_stock_restore_failed",
				observability.F("product_id", line.ProductID),
				observability.F("quantity", line.Quantity),
				observability.F("error", ierr.Error()),
			)
		}
	}

	if uc.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		if perr := uc.publisher.Publish(pubCtx, domain.NewSaleVoidedEvent(void, original)); perr != nil {
			logger.Warn("void_event_publish_failed",
				observability.F("error", perr.Error()),
			)
		}
		cancel()
	}

	span.AddEvent("sale.voided",
		trace.WithAttributes(
			attribute.String("sale.id", original.ID),
			attribute.String("void.id", void.ID),
		),
	)

	return &VoidResult{Void: void}, nil
}
