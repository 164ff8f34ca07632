package sale

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appcart "github.com/smartpos/sale-engine/internal/application/cart"
	domcart "github.com/smartpos/sale-engine/internal/domain/cart"
	domoutbox "github.com/smartpos/sale-engine/internal/domain/outbox"
	dompayment "github.com/smartpos/sale-engine/internal/domain/payment"
	domain "github.com/smartpos/sale-engine/internal/domain/sale"
	domstock "github.com/smartpos/sale-engine/internal/domain/stock"
	"github.com/smartpos/sale-engine/internal/observability"
	"github.com/smartpos/sale-engine/internal/observability/logctx"
	"github.com/smartpos/sale-engine/internal/pkg/money"
)

const (
	saleService   = "sale-service"
	useCaseSubmit = "sale.submit"
	spanPrefix    = "UC."

	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond

	paymentPeer     = "payment_gateway"
	paymentEndpoint = "authorize"
)

// SubmitUseCase is the sale transaction coordinator: it reserves stock,
// obtains a payment confirmation, and commits or rolls back the whole sale
// as one unit. No ledger lock is held while awaiting payment; reservations
// carry that state instead.
type SubmitUseCase struct {
	carts      domcart.Repository
	sales      domain.Repository
	ledger     domstock.Ledger
	authorizer dompayment.Authorizer
	publisher  domoutbox.Publisher
	idGen      IDGenerator
	calc       appcart.Calculator
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewSubmitUseCase(
	carts domcart.Repository,
	sales domain.Repository,
	ledger domstock.Ledger,
	authorizer dompayment.Authorizer,
	publisher domoutbox.Publisher,
	idGen IDGenerator,
	calc appcart.Calculator,
	tel observability.Observability,
) *SubmitUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metricsProvider := tel.Metrics()

	return &SubmitUseCase{
		carts:        carts,
		sales:        sales,
		ledger:       ledger,
		authorizer:   authorizer,
		publisher:    publisher,
		idGen:        idGen,
		calc:         calc,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", saleService)),
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
		extCounter:   metricsProvider.Counter(observability.MExternalRequests),
		extHistogram: metricsProvider.Histogram(observability.MExternalRequestDuration),
	}
}

type SubmitInput struct {
	CartID string
	Method dompayment.Method
	// Deadline bounds payment confirmation. An already-expired deadline aborts
	// the sale with a payment timeout.
	Deadline time.Time
	Rules    []appcart.DiscountRule
}

type SubmitResult struct {
	Sale *domain.Sale
}

// Execute drives one sale through Open → Reserving → AwaitingPayment →
// Committed, releasing every reservation before surfacing any failure.
func (uc *SubmitUseCase) Execute(ctx context.Context, cmd SubmitInput) (_ *SubmitResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseSubmit),
		observability.F("cart_id", cmd.CartID),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"SubmitSale",
		attribute.String("use_case", useCaseSubmit),
		attribute.String("cart.id", cmd.CartID),
		attribute.String("payment.method", string(cmd.Method)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var saleID string
	var publishErr error

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
			observability.L("use_case", useCaseSubmit),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat,
			observability.L("use_case", useCaseSubmit),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if saleID != "" {
			fields = append(fields, observability.F("sale_id", saleID))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if publishErr != nil {
			fields = append(fields, observability.F("event_publish_error", publishErr.Error()))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	if _, merr := dompayment.ParseMethod(string(cmd.Method)); merr != nil {
		outcome, statusText = "error", "PAYMENT_METHOD_INVALID"
		return nil, merr
	}

	c, err := uc.carts.Get(ctx, cmd.CartID)
	if err != nil {
		outcome, statusText = "error", "CART_NOT_FOUND"
		return nil, err
	}
	if c.Submitted {
		outcome, statusText = "error", "CART_ALREADY_SUBMITTED"
		return nil, domcart.ErrAlreadySubmitted
	}
	if len(c.Lines) == 0 {
		outcome, statusText = "error", "CART_EMPTY"
		return nil, domcart.ErrEmpty
	}

	totals := uc.calc.Totals(c.Lines, cmd.Rules...)
	span.SetAttributes(attribute.String("sale.total", totals.Total.String()))

	txn := domain.NewTransaction(c.ID)
	if err := txn.BeginReserving(); err != nil {
		outcome, statusText = "error", "STATE_TRANSITION_FAILED"
		return nil, err
	}

	tokens, err := uc.reserveAll(ctx, c.Lines)
	if err != nil {
		outcome, statusText = "error", "INSUFFICIENT_STOCK"
		_ = txn.Abort(statusText)
		return nil, err
	}

	if err := txn.AwaitPayment(); err != nil {
		uc.releaseAll(ctx, tokens)
		outcome, statusText = "error", "STATE_TRANSITION_FAILED"
		return nil, err
	}

	payResult, err := uc.authorize(ctx, totals, cmd)
	if err != nil {
		uc.releaseAll(ctx, tokens)
		outcome, statusText = "error", "PAYMENT_GATEWAY_ERROR"
		_ = txn.Abort(statusText)
		return nil, fmt.Errorf("%w: %w", domain.ErrPaymentDeclined, err)
	}
	switch payResult.Outcome {
	case dompayment.OutcomeApproved:
	case dompayment.OutcomeTimedOut:
		uc.releaseAll(ctx, tokens)
		outcome, statusText = "error", "PAYMENT_TIMEOUT"
		_ = txn.Abort(statusText)
		return nil, domain.ErrPaymentTimedOut
	default:
		uc.releaseAll(ctx, tokens)
		outcome, statusText = "error", "PAYMENT_DECLINED"
		_ = txn.Abort(statusText)
		return nil, domain.ErrPaymentDeclined
	}

	entity, commitResults, err := uc.commit(ctx, c, totals, cmd.Method, payResult.Reference, tokens)
	if err != nil {
		outcome, statusText = "error", "COMMIT_FAILURE"
		_ = txn.Abort(statusText)
		logger.Error("sale_commit_failure",
			observability.F("cart_id", c.ID),
			observability.F("error", err.Error()),
		)
		return nil, err
	}
	saleID = entity.ID

	if err := txn.Commit(); err != nil {
		outcome, statusText = "error", "STATE_TRANSITION_FAILED"
		return nil, err
	}

	c.MarkSubmitted()
	if uerr := uc.carts.Update(ctx, c); uerr != nil {
		logger.Warn("cart_mark_submitted_failed",
			observability.F("cart_id", c.ID),
			observability.F("error", uerr.Error()),
		)
	}

	publishErr = uc.publishCommitted(ctx, entity, commitResults)

	span.SetAttributes(attribute.String("sale.id", entity.ID))
	span.AddEvent("sale.committed",
		trace.WithAttributes(attribute.String("sale.id", entity.ID)),
	)

	return &SubmitResult{Sale: entity}, nil
}

// reserveAll acquires one reservation per cart line. On any failure it
// releases everything already acquired, in reverse acquisition order, and
// returns the typed insufficiency.
func (uc *SubmitUseCase) reserveAll(ctx context.Context, lines []domcart.Line) ([]string, error) {
	tokens := make([]string, 0, len(lines))
	for _, line := range lines {
		token, err := uc.ledger.Reserve(ctx, line.ProductID, line.Quantity)
		if err != nil {
			uc.releaseAll(ctx, tokens)
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (uc *SubmitUseCase) releaseAll(ctx context.Context, tokens []string) {
	for i := len(tokens) - 1; i >= 0; i-- {
		if err := uc.ledger.Release(ctx, tokens[i]); err != nil {
			uc.log.Warn("reservation_release_failed",
				observability.F("token", tokens[i]),
				observability.F("error", err.Error()),
			)
		}
	}
}

// authorize calls the external payment collaborator under the caller's
// deadline, recording external-call metrics. The coordinator itself never
// retries payment.
func (uc *SubmitUseCase) authorize(ctx context.Context, totals appcart.Totals, cmd SubmitInput) (dompayment.Result, error) {
	payCtx, cancel := context.WithDeadline(ctx, cmd.Deadline)
	defer cancel()

	payStart := time.Now()
	result, err := uc.authorizer.Authorize(payCtx, totals.Total, cmd.Method)

	payOutcome := "success"
	if err != nil {
		payOutcome = "error"
	} else if result.Outcome != dompayment.OutcomeApproved {
		payOutcome = string(result.Outcome)
	}
	uc.extCounter.Add(1,
		observability.L("peer", paymentPeer),
		observability.L("endpoint", paymentEndpoint),
		observability.L("outcome", payOutcome),
	)
	uc.extHistogram.Observe(time.Since(payStart).Seconds(),
		observability.L("peer", paymentPeer),
		observability.L("endpoint", paymentEndpoint),
	)

	if err == nil && payCtx.Err() != nil && result.Outcome == "" {
		return dompayment.Result{Outcome: dompayment.OutcomeTimedOut}, nil
	}
	return result, err
}

// commit applies every reservation to the ledger and writes the immutable
// sale record as one logical unit. A failure anywhere rolls the stock back
// with compensating increments so no partial state stays visible.
func (uc *SubmitUseCase) commit(
	ctx context.Context,
	c *domcart.Cart,
	totals appcart.Totals,
	method dompayment.Method,
	reference string,
	tokens []string,
) (*domain.Sale, []domstock.CommitResult, error) {
	results := make([]domstock.CommitResult, 0, len(tokens))
	for i, token := range tokens {
		res, err := uc.ledger.Commit(ctx, token)
		if err != nil {
			uc.compensate(ctx, results)
			// The failing token may still hold an active reservation;
			// releasing a committed one is a no-op.
			uc.releaseAll(ctx, tokens[i:])
			return nil, nil, fmt.Errorf("%w: ledger commit: %w", domain.ErrCommitFailure, err)
		}
		results = append(results, res)
	}

	now := time.Now().UTC()
	entity := &domain.Sale{
		ID:        uc.idGen.NewID(),
		CashierID: c.CashierID,
		Lines:     saleLines(c.Lines),
		Method:    method,
		Subtotal:  totals.Subtotal,
		Discount:  totals.Discount,
		Tax:       totals.Tax,
		Total:     totals.Total,
		Reference: reference,
		Status:    domain.StatusCommitted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.sales.Insert(ctx, entity); err != nil {
		uc.compensate(ctx, results)
		return nil, nil, fmt.Errorf("%w: persist sale: %w", domain.ErrCommitFailure, err)
	}

	return entity, results, nil
}

// compensate undoes durable stock decrements after a partial commit.
func (uc *SubmitUseCase) compensate(ctx context.Context, results []domstock.CommitResult) {
	for i := len(results) - 1; i >= 0; i-- {
		if _, err := uc.ledger.Increase(ctx, results[i].ProductID, results[i].Quantity); err != nil {
			uc.log.Error("stock_compensation_failed",
				observability.F("product_id", results[i].ProductID),
				observability.F("quantity", results[i].Quantity),
				observability.F("error", err.Error()),
			)
		}
	}
}

func (uc *SubmitUseCase) publishCommitted(ctx context.Context, entity *domain.Sale, results []domstock.CommitResult) error {
	if uc.publisher == nil {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	pubStart := time.Now()
	pubOutcome := "success"

	err := uc.publisher.Publish(pubCtx, domain.NewSaleCommittedEvent(entity))
	for _, res := range results {
		if !res.CrossedLowStock {
			continue
		}
		item, ierr := uc.ledger.Item(ctx, res.ProductID)
		if ierr != nil {
			continue
		}
		if perr := uc.publisher.Publish(pubCtx, domstock.NewLowStockEvent(res.ProductID, res.OnHand, item.ReorderLevel)); perr != nil && err == nil {
			err = perr
		}
	}
	if err != nil {
		pubOutcome = "error"
	}

	uc.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", domain.SaleCommittedEvent{}.EventName()),
		observability.L("outcome", pubOutcome),
	)
	uc.extHistogram.Observe(time.Since(pubStart).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", domain.SaleCommittedEvent{}.EventName()),
	)

	return err
}

func saleLines(lines []domcart.Line) []domain.Line {
	out := make([]domain.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.Line{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   money.LineTotal(l.UnitPrice, l.Quantity),
		})
	}
	return out
}
