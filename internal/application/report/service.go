package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smartpos/sale-engine/internal/domain/payment"
	domain "github.com/smartpos/sale-engine/internal/domain/sale"
	"github.com/smartpos/sale-engine/internal/observability"
)

// Dimension selects a rollup axis for aggregate queries.
type Dimension string

const (
	DimensionRevenue Dimension = "revenue"
	DimensionProduct Dimension = "product"
	DimensionMethod  Dimension = "method"
)

var ErrUnknownDimension = fmt.Errorf("report: unknown dimension")

func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case DimensionRevenue, DimensionProduct, DimensionMethod:
		return Dimension(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
	}
}

type bucketKey struct {
	date time.Time
	dim  Dimension
	key  string
}

// bucket holds one running rollup. Updates are additive in both directions:
// a void applies the same deltas with the opposite sign, so a sale plus its
// void nets every bucket back to its prior value.
type bucket struct {
	mu       sync.Mutex
	count    int64
	quantity int64
	sum      decimal.Decimal
}

func (b *bucket) add(count, quantity int64, sum decimal.Decimal) {
	b.mu.Lock()
	b.count += count
	b.quantity += quantity
	b.sum = b.sum.Add(sum)
	b.mu.Unlock()
}

func (b *bucket) snapshot() (int64, int64, decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count, b.quantity, b.sum
}

// Entry is one (key, metric) row of an aggregate query.
type Entry struct {
	Date     time.Time
	Key      string
	Count    int64
	Quantity int64
	Sum      decimal.Decimal
}

// ProductRank is one row of a top-products query.
type ProductRank struct {
	ProductID string
	Name      string
	Quantity  int64
	Revenue   decimal.Decimal
}

// MethodShare is one payment method's slice of a day.
type MethodShare struct {
	Method payment.Method
	Count  int64
	Sum    decimal.Decimal
}

// DailySummary is the end-of-day rollup emitted by the report scheduler.
type DailySummary struct {
	Date         time.Time
	SaleCount    int64
	GrossRevenue decimal.Decimal
	TopProducts  []ProductRank
	Methods      []MethodShare
}

// Service maintains the aggregate buckets. Sales reach it through the event
// bus only after they are durably committed; it never reads pending state.
type Service struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*bucket

	// product display names, remembered from the last sale that touched them
	namesMu sync.RWMutex
	names   map[string]string

	log observability.Logger
}

func NewService(tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		buckets: make(map[bucketKey]*bucket),
		names:   make(map[string]string),
		log:     tel.Logger().With(observability.F("component", "sales_aggregator")),
	}
}

func (s *Service) bucketFor(date time.Time, dim Dimension, key string) *bucket {
	k := bucketKey{date: date, dim: dim, key: key}

	s.mu.RLock()
	b, ok := s.buckets[k]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[k]; ok {
		return b
	}
	b = &bucket{sum: decimal.Zero}
	s.buckets[k] = b
	return b
}

// apply is the single additive update path for both commits and voids.
func (s *Service) apply(date time.Time, method payment.Method, lines []domain.Line, total decimal.Decimal, sign int64) {
	date = date.UTC().Truncate(24 * time.Hour)
	signed := total.Mul(decimal.NewFromInt(sign))

	s.bucketFor(date, DimensionRevenue, "total").add(sign, 0, signed)
	s.bucketFor(date, DimensionMethod, string(method)).add(sign, 0, signed)

	for _, line := range lines {
		s.rememberName(line.ProductID, line.ProductName)
		s.bucketFor(date, DimensionProduct, line.ProductID).add(
			sign,
			sign*int64(line.Quantity),
			line.LineTotal.Mul(decimal.NewFromInt(sign)),
		)
	}
}

func (s *Service) rememberName(productID, name string) {
	if name == "" {
		return
	}
	s.namesMu.Lock()
	s.names[productID] = name
	s.namesMu.Unlock()
}

func (s *Service) nameOf(productID string) string {
	s.namesMu.RLock()
	defer s.namesMu.RUnlock()
	return s.names[productID]
}

// OnSaleCommitted folds one committed sale into the rollups.
func (s *Service) OnSaleCommitted(_ context.Context, evt domain.SaleCommittedEvent) {
	s.apply(evt.SaleDate, evt.Method, evt.Lines, evt.Total, 1)
}

// OnSaleVoided applies the compensating deltas against the original sale's
// date, so netting lands in the buckets the sale originally filled.
func (s *Service) OnSaleVoided(_ context.Context, evt domain.SaleVoidedEvent) {
	s.apply(evt.SaleDate, evt.Method, evt.Lines, evt.Total, -1)
}

// Query returns the rollup rows for one dimension across [from, to],
// ordered by date then key for deterministic output.
func (s *Service) Query(from, to time.Time, dim Dimension) []Entry {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)

	s.mu.RLock()
	keys := make([]bucketKey, 0, len(s.buckets))
	for k := range s.buckets {
		if k.dim != dim || k.date.Before(from) || k.date.After(to) {
			continue
		}
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].date.Equal(keys[j].date) {
			return keys[i].date.Before(keys[j].date)
		}
		return keys[i].key < keys[j].key
	})

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		s.mu.RLock()
		b := s.buckets[k]
		s.mu.RUnlock()

		count, qty, sum := b.snapshot()
		out = append(out, Entry{
			Date:     k.date,
			Key:      k.key,
			Count:    count,
			Quantity: qty,
			Sum:      sum,
		})
	}
	return out
}

// TopProducts ranks products sold in [from, to] by quantity descending.
// Ties break on product identifier ascending. n <= 0 means no limit.
func (s *Service) TopProducts(from, to time.Time, n int) []ProductRank {
	totals := make(map[string]*ProductRank)
	for _, e := range s.Query(from, to, DimensionProduct) {
		r, ok := totals[e.Key]
		if !ok {
			r = &ProductRank{ProductID: e.Key, Name: s.nameOf(e.Key), Revenue: decimal.Zero}
			totals[e.Key] = r
		}
		r.Quantity += e.Quantity
		r.Revenue = r.Revenue.Add(e.Sum)
	}

	ranks := make([]ProductRank, 0, len(totals))
	for _, r := range totals {
		ranks = append(ranks, *r)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Quantity != ranks[j].Quantity {
			return ranks[i].Quantity > ranks[j].Quantity
		}
		return ranks[i].ProductID < ranks[j].ProductID
	})

	if n > 0 && len(ranks) > n {
		ranks = ranks[:n]
	}
	return ranks
}

// Summary assembles one day's rollup for reporting.
func (s *Service) Summary(date time.Time) DailySummary {
	date = date.UTC().Truncate(24 * time.Hour)

	summary := DailySummary{
		Date:         date,
		GrossRevenue: decimal.Zero,
		TopProducts:  s.TopProducts(date, date, 5),
	}

	for _, e := range s.Query(date, date, DimensionRevenue) {
		summary.SaleCount += e.Count
		summary.GrossRevenue = summary.GrossRevenue.Add(e.Sum)
	}
	for _, e := range s.Query(date, date, DimensionMethod) {
		summary.Methods = append(summary.Methods, MethodShare{
			Method: payment.Method(e.Key),
			Count:  e.Count,
			Sum:    e.Sum,
		})
	}
	return summary
}
