package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/smartpos/sale-engine/internal/domain/sale"
)

// SaleArchive persists an immutable copy of every finalized sale record for
// offline reporting. It sits behind the event bus and never participates in
// the commit path, so an archive outage cannot fail a sale.
type SaleArchive struct {
	client   *mongo.Client
	dbName   string
	collName string
}

func NewSaleArchive(ctx context.Context, uri, dbName string) (*SaleArchive, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return &SaleArchive{
		client:   client,
		dbName:   dbName,
		collName: "sales",
	}, nil
}

type saleLineDoc struct {
	ProductID   string `bson:"product_id"`
	ProductName string `bson:"product_name"`
	Quantity    int    `bson:"quantity"`
	UnitPrice   string `bson:"unit_price"`
	LineTotal   string `bson:"line_total"`
}

type saleDoc struct {
	SaleID     string        `bson:"sale_id"`
	CashierID  string        `bson:"cashier_id,omitempty"`
	Lines      []saleLineDoc `bson:"lines"`
	Method     string        `bson:"method"`
	Subtotal   string        `bson:"subtotal"`
	Discount   string        `bson:"discount"`
	Tax        string        `bson:"tax"`
	Total      string        `bson:"total"`
	Reference  string        `bson:"reference,omitempty"`
	Status     string        `bson:"status"`
	VoidOf     string        `bson:"void_of,omitempty"`
	VoidReason string        `bson:"void_reason,omitempty"`
	SaleDate   time.Time     `bson:"sale_date"`
	CreatedAt  time.Time     `bson:"created_at"`
}

func toDoc(s *domain.Sale) saleDoc {
	lines := make([]saleLineDoc, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, saleLineDoc{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.String(),
			LineTotal:   l.LineTotal.String(),
		})
	}
	return saleDoc{
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
		SaleDate:   s.Date(),
		CreatedAt:  s.CreatedAt,
	}
}

// Archive writes one sale record. Amounts are stored as decimal strings so
// no reader ever reconstructs money from a binary float.
func (a *SaleArchive) Archive(ctx context.Context, s *domain.Sale) error {
	coll := a.client.Database(a.dbName).Collection(a.collName)
	if _, err := coll.InsertOne(ctx, toDoc(s)); err != nil {
		return fmt.Errorf("mongo: insert sale %s: %w", s.ID, err)
	}
	return nil
}

func (a *SaleArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
