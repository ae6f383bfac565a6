package reports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/internal/orders"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
)

type orderCounter interface {
	CountOrders(ctx context.Context) (int64, error)
	CountActiveCustomers(ctx context.Context) (int64, error)
}

type principalCounter interface {
	CountPrincipals(ctx context.Context) (int64, error)
}

type productCounter interface {
	CountProducts(ctx context.Context) (int64, error)
}

type detailReader interface {
	GetOrderDetail(ctx context.Context, principal access.Principal, orderID, query string) (*orders.OrderDetail, error)
}

// Summary holds the dashboard counters.
type Summary struct {
	Orders          int64     `json:"orders"`
	ActiveCustomers int64     `json:"active_customers"`
	Principals      int64     `json:"principals"`
	Products        int64     `json:"products"`
	GeneratedAt     time.Time `json:"generated_at"`
}

type ReportRow struct {
	ProductID   string          `json:"product_id"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// SalesReport is the printable view of one order. Missing prices count as
// zero.
type SalesReport struct {
	OrderID      string          `json:"order_id"`
	OrderDate    string          `json:"order_date"`
	CustomerName string          `json:"customer_name"`
	EmployeeName string          `json:"employee_name"`
	Rows         []ReportRow     `json:"rows"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	ChargedTotal decimal.Decimal `json:"charged_total"`
}

type Service interface {
	Summary(ctx context.Context) (*Summary, error)
	SalesReport(ctx context.Context, principal access.Principal, orderID string) (*SalesReport, error)
}

type ServiceParams struct {
	Orders     orderCounter
	Principals principalCounter
	Products   productCounter
	Details    detailReader
	Now        func() time.Time
}

type service struct {
	orders     orderCounter
	principals principalCounter
	products   productCounter
	details    detailReader
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Orders == nil:
		return nil, errors.New("order counter required")
	case params.Principals == nil:
		return nil, errors.New("principal counter required")
	case params.Products == nil:
		return nil, errors.New("product counter required")
	case params.Details == nil:
		return nil, errors.New("order detail reader required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		orders:     params.Orders,
		principals: params.Principals,
		products:   params.Products,
		details:    params.Details,
		now:        now,
	}, nil
}

func (s *service) Summary(ctx context.Context) (*Summary, error) {
	out := &Summary{GeneratedAt: s.now()}
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, fn func(context.Context) (int64, error), what string) {
		g.Go(func() error {
			n, err := fn(gctx)
			if err != nil {
				return dbpkg.StoreError(err, what)
			}
			*dst = n
			return nil
		})
	}
	count(&out.Orders, s.orders.CountOrders, "count orders")
	count(&out.ActiveCustomers, s.orders.CountActiveCustomers, "count active customers")
	count(&out.Principals, s.principals.CountPrincipals, "count principals")
	count(&out.Products, s.products.CountProducts, "count products")
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) SalesReport(ctx context.Context, principal access.Principal, orderID string) (*SalesReport, error) {
	detail, err := s.details.GetOrderDetail(ctx, principal, orderID, "")
	if err != nil {
		return nil, err
	}
	report := &SalesReport{
		OrderID:      detail.Order.ID,
		OrderDate:    detail.Order.Date,
		CustomerName: detail.CustomerName,
		EmployeeName: detail.EmployeeName,
		Rows:         make([]ReportRow, 0, len(detail.Rows)),
		GrandTotal:   decimal.Zero,
		ChargedTotal: detail.ChargedTotal,
	}
	for _, row := range detail.Rows {
		price := decimal.Zero
		if row.UnitPrice != nil {
			price = *row.UnitPrice
		}
		total := price.Mul(decimal.NewFromInt(int64(row.Quantity)))
		report.Rows = append(report.Rows, ReportRow{
			ProductID:   row.ProductID,
			Description: row.ProductDescription,
			Unit:        row.ProductUnit,
			Quantity:    row.Quantity,
			UnitPrice:   price,
			LineTotal:   total,
		})
		report.GrandTotal = report.GrandTotal.Add(total)
	}
	return report, nil
}
