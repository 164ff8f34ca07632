package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smartpos/sale-engine/internal/application/report"
	domstock "github.com/smartpos/sale-engine/internal/domain/stock"
	"github.com/smartpos/sale-engine/internal/observability"
)

const jobTimeout = 2 * time.Minute

// Scheduler runs the end-of-day reporting job: the daily sales summary and
// a low-stock sweep for the replenishment crew.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	reports  *report.Service
	ledger   domstock.Ledger

	log           observability.Logger
	lowStockGauge observability.Gauge
}

func New(schedule string, reports *report.Service, ledger domstock.Ledger, tel observability.Observability) *Scheduler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Scheduler{
		cron:          cron.New(),
		schedule:      schedule,
		reports:       reports,
		ledger:        ledger,
		log:           tel.Logger().With(observability.F("component", "report_scheduler")),
		lowStockGauge: tel.Metrics().Gauge(observability.MLowStockProducts),
	}
}

func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runDailyReport); err != nil {
		s.log.Error("schedule_register_failed",
			observability.F("schedule", s.schedule),
			observability.F("error", err.Error()),
		)
		return
	}
	s.cron.Start()
	s.log.Info("scheduler_started", observability.F("schedule", s.schedule))
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler_stopped")
}

func (s *Scheduler) runDailyReport() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	summary := s.reports.Summary(time.Now().UTC())

	s.log.Info("daily_summary",
		observability.F("date", summary.Date.Format("2006-01-02")),
		observability.F("sale_count", summary.SaleCount),
		observability.F("gross_revenue", summary.GrossRevenue.String()),
	)

	for rank, p := range summary.TopProducts {
		s.log.Info("daily_top_product",
			observability.F("date", summary.Date.Format("2006-01-02")),
			observability.F("rank", rank+1),
			observability.F("product_id", p.ProductID),
			observability.F("product_name", p.Name),
			observability.F("quantity", p.Quantity),
			observability.F("revenue", p.Revenue.String()),
		)
	}

	for _, m := range summary.Methods {
		s.log.Info("daily_method_mix",
			observability.F("date", summary.Date.Format("2006-01-02")),
			observability.F("method", string(m.Method)),
			observability.F("count", m.Count),
			observability.F("sum", m.Sum.String()),
		)
	}

	low, err := s.ledger.LowStockProducts(ctx)
	if err != nil {
		s.log.Error("low_stock_sweep_failed", observability.F("error", err.Error()))
		return
	}
	s.lowStockGauge.Set(float64(len(low)))
	if len(low) > 0 {
		s.log.Warn("low_stock_products", observability.F("product_ids", low))
	}
}
