package orders

import (
	"context"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

// orderDateText renders order_date as YYYY-MM-DD text on Postgres and as the
// stored text on SQLite; both contain the calendar date.
const orderDateText = "CAST(order_date AS TEXT)"

var sortColumns = map[enums.OrderSortColumn]string{
	enums.OrderSortID:         "id",
	enums.OrderSortDate:       "order_date",
	enums.OrderSortCustomerID: "customer_id",
	enums.OrderSortEmployeeID: "employee_id",
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders applies the OR-substring filter and sorts by the whitelisted
// column, breaking ties by id ascending.
func (r *repository) ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	column, ok := sortColumns[filter.Sort]
	if !ok {
		column = sortColumns[enums.OrderSortDate]
	}
	direction := "DESC"
	if filter.Direction == enums.SortAsc {
		direction = "ASC"
	}

	q := dbpkg.MatchAny(r.db.WithContext(ctx).Model(&models.Order{}), filter.Query,
		"id", "customer_id", "employee_id", orderDateText)
	q = q.Order(column + " " + direction)
	if column != "id" {
		q = q.Order("id ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []models.Order
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateOrderHeader(ctx context.Context, id string, header Header) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"order_date":  header.Date,
			"customer_id": header.CustomerID,
			"employee_id": header.EmployeeID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteOrder removes the header; line items go with it through the
// foreign key cascade.
func (r *repository) DeleteOrder(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindLineItems(ctx context.Context, orderID string) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("product_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) DeleteLineItems(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderLineItem{}).Error
}

func (r *repository) UpdateLineItemQuantity(ctx context.Context, orderID, productID string, quantity int) (*models.OrderLineItem, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		UpdateColumn("quantity", quantity)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.findLineItem(ctx, orderID, productID)
}

// DeleteLineItem returns the removed row.
func (r *repository) DeleteLineItem(ctx context.Context, orderID, productID string) (*models.OrderLineItem, error) {
	item, err := r.findLineItem(ctx, orderID, productID)
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Delete(&models.OrderLineItem{}).Error
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *repository) CountOrders(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Count(&count).Error
	return count, err
}

// CountActiveCustomers counts distinct customers referenced by any order.
func (r *repository) CountActiveCustomers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("customer_id IS NOT NULL").
		Distinct("customer_id").
		Count(&count).Error
	return count, err
}

func (r *repository) findLineItem(ctx context.Context, orderID, productID string) (*models.OrderLineItem, error) {
	var item models.OrderLineItem
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}
