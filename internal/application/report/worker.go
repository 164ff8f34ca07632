package report

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/smartpos/sale-engine/internal/domain/outbox"
	domain "github.com/smartpos/sale-engine/internal/domain/sale"
	"github.com/smartpos/sale-engine/internal/observability"
	"github.com/smartpos/sale-engine/internal/observability/logctx"
)

const (
	workerService = "report-worker"
	spanPrefix    = "Worker."
)

// Worker feeds committed and voided sales from the event bus into the
// aggregator. Handlers do not deduplicate: the in-process bus delivers
// each event once per subscriber.
type Worker struct {
	service    *Service
	subscriber domoutbox.Subscriber
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewWorker(service *Service, subscriber domoutbox.Subscriber, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	metricsProvider := tel.Metrics()

	return &Worker{
		service:      service,
		subscriber:   subscriber,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.service == nil {
		return
	}
	w.subscriber.Subscribe(domain.SaleCommittedEvent{}.EventName(), w.handleSaleCommitted)
	w.subscriber.Subscribe(domain.SaleVoidedEvent{}.EventName(), w.handleSaleVoided)
}

func (w *Worker) handleSaleCommitted(ctx context.Context, e domoutbox.Event) error {
	const useCase = "report.worker.sale_committed"
	evt, ok := e.(domain.SaleCommittedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"SaleCommitted",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("sale.id", evt.SaleID),
	)
	start := time.Now()

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("sale_id", evt.SaleID),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	w.service.OnSaleCommitted(ctx, evt)

	lat := time.Since(start).Seconds()
	w.observe(useCase, "success", lat)
	logger.Info("use_case_done",
		observability.F("outcome", "success"),
		observability.F("status", "OK"),
		observability.F("latency_seconds", lat),
	)

	span.SetStatus(codes.Ok, "OK")
	span.End()
	return nil
}

func (w *Worker) handleSaleVoided(ctx context.Context, e domoutbox.Event) error {
	const useCase = "report.worker.sale_voided"
	evt, ok := e.(domain.SaleVoidedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"SaleVoided",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("sale.id", evt.SaleID),
		attribute.String("void.id", evt.VoidID),
	)
	start := time.Now()

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("sale_id", evt.SaleID),
		observability.F("void_id", evt.VoidID),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	w.service.OnSaleVoided(ctx, evt)

	lat := time.Since(start).Seconds()
	w.observe(useCase, "success", lat)
	logger.Info("use_case_done",
		observability.F("outcome", "success"),
		observability.F("status", "OK"),
		observability.F("latency_seconds", lat),
	)

	span.SetStatus(codes.Ok, "OK")
	span.End()
	return nil
}

func (w *Worker) count(useCase, outcome string) {
	if w.reqCounter != nil {
		w.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
	}
}

func (w *Worker) observe(useCase, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	if w.durHistogram != nil {
		w.durHistogram.Observe(latencySeconds,
			observability.L("use_case", useCase),
		)
	}
}
