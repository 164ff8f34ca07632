package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	appcart "github.com/smartpos/sale-engine/internal/application/cart"
	"github.com/smartpos/sale-engine/internal/application/report"
	appsale "github.com/smartpos/sale-engine/internal/application/sale"
	domcart "github.com/smartpos/sale-engine/internal/domain/cart"
	domcatalog "github.com/smartpos/sale-engine/internal/domain/catalog"
	dompayment "github.com/smartpos/sale-engine/internal/domain/payment"
	domsale "github.com/smartpos/sale-engine/internal/domain/sale"
	domstock "github.com/smartpos/sale-engine/internal/domain/stock"
	"github.com/smartpos/sale-engine/internal/observability"
	"github.com/smartpos/sale-engine/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerCashierID      = "X-Cashier-ID"

	dateLayout = "2006-01-02"
)

type Handler struct {
	carts   *appcart.Service
	submit  *appsale.SubmitUseCase
	void    *appsale.VoidUseCase
	reports *report.Service
	ledger  domstock.Ledger

	// applied when a submit request names no payment deadline
	defaultDeadline time.Duration

	log observability.Logger
	tel observability.Observability
}

func NewHandler(
	carts *appcart.Service,
	submit *appsale.SubmitUseCase,
	void *appsale.VoidUseCase,
	reports *report.Service,
	ledger domstock.Ledger,
	defaultDeadline time.Duration,
	tel observability.Observability,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		carts:           carts,
		submit:          submit,
		void:            void,
		reports:         reports,
		ledger:          ledger,
		defaultDeadline: defaultDeadline,
		log:             tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:             tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Wire each route with middlewares:
	// Trace → ObservabilityMiddleware (request logger) → HTTP metrics → Access log → Handler
	h.muxHandle(mux, "POST /carts", h.handleBeginSale)
	h.muxHandle(mux, "POST /carts/{id}/lines", h.handleAddLine)
	h.muxHandle(mux, "DELETE /carts/{id}/lines/{pid}", h.handleRemoveLine)
	h.muxHandle(mux, "GET /carts/{id}/total", h.handleComputeTotal)
	h.muxHandle(mux, "POST /carts/{id}/submit", h.handleSubmit)
	h.muxHandle(mux, "POST /sales/{id}/void", h.handleVoid)
	h.muxHandle(mux, "GET /reports/aggregate", h.handleQueryAggregate)
	h.muxHandle(mux, "GET /reports/top-products", h.handleTopProducts)
	h.muxHandle(mux, "GET /stock/low", h.handleLowStockProducts)
	h.muxHandle(mux, "GET /stock/{id}", h.handleStockItem)
	h.muxHandle(mux, "GET /health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		// Store stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), pattern)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
				h.tel,
			)(
				h.withAccessLog(http.HandlerFunc(handler)),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type beginSaleRequest struct {
	CashierID string `json:"cashier_id"`
}

type cartLineView struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type cartView struct {
	CartID    string         `json:"cart_id"`
	CashierID string         `json:"cashier_id"`
	Lines     []cartLineView `json:"lines"`
	Submitted bool           `json:"submitted"`
}

func toCartView(c *domcart.Cart) cartView {
	lines := make([]cartLineView, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, cartLineView{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.String(),
		})
	}
	return cartView{
		CartID:    c.ID,
		CashierID: c.CashierID,
		Lines:     lines,
		Submitted: c.Submitted,
	}
}

func (h *Handler) handleBeginSale(w http.ResponseWriter, r *http.Request) {
	var req beginSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.CashierID == "" {
		req.CashierID = r.Header.Get(headerCashierID)
	}

	c, err := h.carts.BeginSale(r.Context(), req.CashierID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartView(c))
}

type addLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.carts.AddLine(r.Context(), r.PathValue("id"), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(c))
}

func (h *Handler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveLine(r.Context(), r.PathValue("id"), r.PathValue("pid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(c))
}

type totalsView struct {
	Subtotal string `json:"subtotal"`
	Discount string `json:"discount"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

func toTotalsView(t appcart.Totals) totalsView {
	return totalsView{
		Subtotal: t.Subtotal.String(),
		Discount: t.Discount.String(),
		Tax:      t.Tax.String(),
		Total:    t.Total.String(),
	}
}

func (h *Handler) handleComputeTotal(w http.ResponseWriter, r *http.Request) {
	rules, err := discountRules(r.URL.Query().Get("discount_percent"), r.URL.Query().Get("discount_amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	totals, err := h.carts.ComputeTotal(r.Context(), r.PathValue("id"), rules...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsView(totals))
}

type submitRequest struct {
	Method          string `json:"method"`
	TimeoutMS       *int64 `json:"timeout_ms,omitempty"`
	DiscountPercent string `json:"discount_percent,omitempty"`
	DiscountAmount  string `json:"discount_amount,omitempty"`
}

type saleLineView struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type saleView struct {
	SaleID     string         `json:"sale_id"`
	CashierID  string         `json:"cashier_id,omitempty"`
	Lines      []saleLineView `json:"lines"`
	Method     string         `json:"method"`
	Subtotal   string         `json:"subtotal"`
	Discount   string         `json:"discount"`
	Tax        string         `json:"tax"`
	Total      string         `json:"total"`
	Reference  string         `json:"reference,omitempty"`
	Status     string         `json:"status"`
	VoidOf     string         `json:"void_of,omitempty"`
	VoidReason string         `json:"void_reason,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func toSaleView(s *domsale.Sale) saleView {
	lines := make([]saleLineView, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, saleLineView{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.String(),
			LineTotal:   l.LineTotal.String(),
		})
	}
	return saleView{
		SaleID:     s.ID,
		CashierID:  s.CashierID,
		Lines:      lines,
		Method:     string(s.Method),
		Subtotal:   s.Subtotal.String(),
		Discount:   s.Discount.String(),
		Tax:        s.Tax.String(),
		Total:      s.Total.String(),
		Reference:  s.Reference,
		Status:     string(s.Status),
		VoidOf:     s.VoidOf,
		VoidReason: s.VoidReason,
		CreatedAt:  s.CreatedAt,
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rules, err := discountRules(req.DiscountPercent, req.DiscountAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Zero timeout is honored as an already-expired deadline; only an absent
	// field falls back to the server default.
	deadline := time.Now().Add(h.defaultDeadline)
	if req.TimeoutMS != nil {
		deadline = time.Now().Add(time.Duration(*req.TimeoutMS) * time.Millisecond)
	}

	result, err := h.submit.Execute(r.Context(), appsale.SubmitInput{
		CartID:   r.PathValue("id"),
		Method:   dompayment.Method(req.Method),
		Deadline: deadline,
		Rules:    rules,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleView(result.Sale))
}

type voidRequest struct {
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id"`
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(headerCashierID)
	}

	result, err := h.void.Execute(r.Context(), appsale.VoidInput{
		SaleID:  r.PathValue("id"),
		Reason:  req.Reason,
		ActorID: req.ActorID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleView(result.Void))
}

type aggregateRow struct {
	Date     string `json:"date"`
	Key      string `json:"key"`
	Count    int64  `json:"count"`
	Quantity int64  `json:"quantity"`
	Sum      string `json:"sum"`
}

func (h *Handler) handleQueryAggregate(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dim, err := report.ParseDimension(r.URL.Query().Get("dimension"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rows := make([]aggregateRow, 0)
	for _, e := range h.reports.Query(from, to, dim) {
		rows = append(rows, aggregateRow{
			Date:     e.Date.Format(dateLayout),
			Key:      e.Key,
			Count:    e.Count,
			Quantity: e.Quantity,
			Sum:      e.Sum.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"dimension": dim, "rows": rows})
}

type topProductRow struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int64  `json:"quantity"`
	Revenue   string `json:"revenue"`
}

func (h *Handler) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	rows := make([]topProductRow, 0)
	for _, p := range h.reports.TopProducts(from, to, n) {
		rows = append(rows, topProductRow{
			ProductID: p.ProductID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			Revenue:   p.Revenue.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleLowStockProducts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ledger.LowStockProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_ids": ids})
}

type stockItemView struct {
	ProductID    string `json:"product_id"`
	OnHand       int    `json:"on_hand"`
	ReorderLevel int    `json:"reorder_level"`
	LowStock     bool   `json:"low_stock"`
}

func (h *Handler) handleStockItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.ledger.Item(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockItemView{
		ProductID:    item.ProductID,
		OnHand:       item.OnHand,
		ReorderLevel: item.ReorderLevel,
		LowStock:     item.IsLowStock(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("sale-engine.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func discountRules(percent, amount string) ([]appcart.DiscountRule, error) {
	var rules []appcart.DiscountRule
	if percent != "" {
		p, err := decimal.NewFromString(percent)
		if err != nil {
			return nil, err
		}
		rules = append(rules, appcart.PercentOff{Percent: p})
	}
	if amount != "" {
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		rules = append(rules, appcart.AmountOff{Amount: a})
	}
	return rules, nil
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	from := time.Now().UTC()
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}

	to := from
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domcart.ErrNotFound),
		errors.Is(err, domsale.ErrNotFound),
		errors.Is(err, domstock.ErrNotFound),
		errors.Is(err, domcart.ErrLineNotFound),
		errors.Is(err, domcatalog.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domstock.ErrInsufficientStock),
		errors.Is(err, domcart.ErrAlreadySubmitted),
		errors.Is(err, domsale.ErrAlreadyVoided),
		errors.Is(err, domsale.ErrNotCommitted),
		errors.Is(err, domsale.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domsale.ErrPaymentDeclined):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, domsale.ErrPaymentTimedOut):
		writeError(w, http.StatusGatewayTimeout, err)
	case errors.Is(err, domcart.ErrInvalidQuantity),
		errors.Is(err, domcart.ErrEmpty),
		errors.Is(err, domstock.ErrInvalidQuantity),
		errors.Is(err, dompayment.ErrUnknownMethod),
		errors.Is(err, report.ErrUnknownDimension):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
