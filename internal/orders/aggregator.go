package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/salesledger/internal/access"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

// Aggregator assembles read views over orders. Every call re-resolves the
// calling principal.
type Aggregator interface {
	ListOrders(ctx context.Context, principal access.Principal, q ListQuery) ([]OrderSummary, error)
	GetOrderDetail(ctx context.Context, principal access.Principal, orderID, query string) (*OrderDetail, error)
}

type AggregatorParams struct {
	Repo      Repository
	Reference referenceReader
	Prices    priceResolver
	Access    authorizer
	Logger    *logger.Logger
	ListLimit int
}

type aggregator struct {
	repo      Repository
	reference referenceReader
	prices    priceResolver
	access    authorizer
	logg      *logger.Logger
	listLimit int
}

func NewAggregator(params AggregatorParams) (Aggregator, error) {
	if params.Repo == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Reference == nil {
		return nil, errors.New("reference reader required")
	}
	if params.Prices == nil {
		return nil, errors.New("price resolver required")
	}
	if params.Access == nil {
		return nil, errors.New("access service required")
	}
	return &aggregator{
		repo:      params.Repo,
		reference: params.Reference,
		prices:    params.Prices,
		access:    params.Access,
		logg:      params.Logger,
		listLimit: params.ListLimit,
	}, nil
}

func (a *aggregator) ListOrders(ctx context.Context, principal access.Principal, q ListQuery) ([]OrderSummary, error) {
	if _, err := a.access.Resolve(ctx, principal.ID); err != nil {
		return nil, err
	}
	sort, err := enums.ParseOrderSortColumn(q.Sort)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort column")
	}
	dir, err := enums.ParseSortDirection(q.Direction)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort direction")
	}

	rows, err := a.repo.ListOrders(ctx, ListFilter{
		Query:     strings.TrimSpace(q.Query),
		Sort:      sort,
		Direction: dir,
		Limit:     a.listLimit,
	})
	if err != nil {
		return nil, dbpkg.StoreError(err, "list orders")
	}
	out := make([]OrderSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, SummaryFromModel(row))
	}
	return out, nil
}

// GetOrderDetail returns NOT_FOUND for a missing order; an existing order
// without lines yields an empty Rows slice. Product and name lookups that
// fail degrade to the raw codes; when prices cannot be read every row is
// left unpriced and counts as zero.
func (a *aggregator) GetOrderDetail(ctx context.Context, principal access.Principal, orderID, query string) (*OrderDetail, error) {
	if _, err := a.access.Resolve(ctx, principal.ID); err != nil {
		return nil, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	order, err := a.repo.FindOrder(ctx, orderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			a.warn(ctx, orderID, "order not found")
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", orderID)
		}
		return nil, dbpkg.StoreError(err, "load order")
	}
	items, err := a.repo.FindLineItems(ctx, orderID)
	if err != nil {
		return nil, dbpkg.StoreError(err, "load line items")
	}

	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	products := a.products(ctx, orderID, productIDs)
	prices := a.currentPrices(ctx, orderID, productIDs)

	detail := &OrderDetail{
		Order:        SummaryFromModel(*order),
		CustomerName: a.customerName(ctx, order),
		EmployeeName: a.employeeName(ctx, order),
		Rows:         make([]LineItemView, 0, len(items)),
		Total:        decimal.Zero,
		ChargedTotal: decimal.Zero,
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	for _, item := range items {
		row := LineItemView{
			OrderID:            item.OrderID,
			ProductID:          item.ProductID,
			Quantity:           item.Quantity,
			ProductDescription: item.ProductID,
			CustomerName:       detail.CustomerName,
			EmployeeName:       detail.EmployeeName,
			OrderDate:          detail.Order.Date,
			LineTotal:          decimal.Zero,
		}
		if product, ok := products[item.ProductID]; ok {
			if product.Description != nil && *product.Description != "" {
				row.ProductDescription = *product.Description
			}
			if product.Unit != nil {
				row.ProductUnit = *product.Unit
			}
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(row.ProductID), needle) &&
			!strings.Contains(strings.ToLower(row.ProductDescription), needle) {
			continue
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		if price, ok := prices[item.ProductID]; ok {
			p := price
			row.UnitPrice = &p
			row.LineTotal = qty.Mul(price)
		}
		if item.ChargedUnitPrice.Valid {
			charged := item.ChargedUnitPrice.Decimal
			row.ChargedUnitPrice = &charged
			detail.ChargedTotal = detail.ChargedTotal.Add(qty.Mul(charged))
		}
		detail.Total = detail.Total.Add(row.LineTotal)
		detail.Rows = append(detail.Rows, row)
	}
	return detail, nil
}

func (a *aggregator) products(ctx context.Context, orderID string, ids []string) map[string]models.Product {
	if len(ids) == 0 {
		return map[string]models.Product{}
	}
	products, err := a.reference.FindProductsByIDs(ctx, ids)
	if err != nil {
		a.lookupFailed(ctx, orderID, "product lookup failed", err)
		return map[string]models.Product{}
	}
	return products
}

func (a *aggregator) currentPrices(ctx context.Context, orderID string, ids []string) map[string]decimal.Decimal {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}
	}
	prices, err := a.prices.CurrentPrices(ctx, ids)
	if err != nil {
		a.lookupFailed(ctx, orderID, "price lookup failed", err)
		return map[string]decimal.Decimal{}
	}
	return prices
}

func (a *aggregator) customerName(ctx context.Context, order *models.Order) string {
	if order.CustomerID == nil {
		return ""
	}
	customer, err := a.reference.FindCustomer(ctx, *order.CustomerID)
	if err != nil {
		if !dbpkg.IsNotFound(err) {
			a.lookupFailed(ctx, order.ID, "customer lookup failed", err)
		}
		return *order.CustomerID
	}
	return customer.Name
}

func (a *aggregator) employeeName(ctx context.Context, order *models.Order) string {
	if order.EmployeeID == nil {
		return ""
	}
	employee, err := a.reference.FindEmployee(ctx, *order.EmployeeID)
	if err != nil {
		if !dbpkg.IsNotFound(err) {
			a.lookupFailed(ctx, order.ID, "employee lookup failed", err)
		}
		return *order.EmployeeID
	}
	return employee.FullName()
}

func (a *aggregator) warn(ctx context.Context, orderID, msg string) {
	if a.logg == nil {
		return
	}
	a.logg.Warn(a.logg.WithOrderID(ctx, orderID), msg)
}

func (a *aggregator) lookupFailed(ctx context.Context, orderID, msg string, err error) {
	if a.logg == nil {
		return
	}
	a.logg.Error(a.logg.WithOrderID(ctx, orderID), msg, err)
}
