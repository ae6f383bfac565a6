package reference

import (
	"context"
	"errors"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Searched columns per table.
var (
	customerSearchColumns = []string{"id", "name", "COALESCE(address, '')"}
	employeeSearchColumns = []string{"id", "first_name", "last_name"}
	productSearchColumns  = []string{"id", "COALESCE(description, '')", "COALESCE(unit, '')"}
	priceSearchColumns    = []string{"product_id"}
)

// Repository reads reference tables. Prices are append-only: there is no
// update or delete for price_records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	SearchCustomers(ctx context.Context, query string, limit int) ([]models.Customer, error)
	SearchEmployees(ctx context.Context, query string, limit int) ([]models.Employee, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]models.Product, error)
	SearchPrices(ctx context.Context, query string, limit int) ([]models.PriceRecord, error)

	FindCustomer(ctx context.Context, id string) (*models.Customer, error)
	FindEmployee(ctx context.Context, id string) (*models.Employee, error)
	FindProduct(ctx context.Context, id string) (*models.Product, error)
	FindProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
	CountProducts(ctx context.Context) (int64, error)

	LatestPrice(ctx context.Context, productID string) (*models.PriceRecord, error)
	LatestPrices(ctx context.Context, productIDs []string) (map[string]models.PriceRecord, error)
	PriceHistory(ctx context.Context, productID string) ([]models.PriceRecord, error)
	AppendPrice(ctx context.Context, record *models.PriceRecord) error

	UpsertCustomer(ctx context.Context, row *models.Customer) error
	UpsertEmployee(ctx context.Context, row *models.Employee) error
	UpsertProduct(ctx context.Context, row *models.Product) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reference repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) SearchCustomers(ctx context.Context, query string, limit int) ([]models.Customer, error) {
	var rows []models.Customer
	err := dbpkg.MatchAny(r.db.WithContext(ctx).Model(&models.Customer{}), query, customerSearchColumns...).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) SearchEmployees(ctx context.Context, query string, limit int) ([]models.Employee, error) {
	var rows []models.Employee
	err := dbpkg.MatchAny(r.db.WithContext(ctx).Model(&models.Employee{}), query, employeeSearchColumns...).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) SearchProducts(ctx context.Context, query string, limit int) ([]models.Product, error) {
	var rows []models.Product
	err := dbpkg.MatchAny(r.db.WithContext(ctx).Model(&models.Product{}), query, productSearchColumns...).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) SearchPrices(ctx context.Context, query string, limit int) ([]models.PriceRecord, error) {
	var rows []models.PriceRecord
	err := dbpkg.MatchAny(r.db.WithContext(ctx).Model(&models.PriceRecord{}), query, priceSearchColumns...).
		Order("product_id ASC").
		Order("effective_date DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var row models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindEmployee(ctx context.Context, id string) (*models.Employee, error) {
	var row models.Employee
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindProduct(ctx context.Context, id string) (*models.Product, error) {
	var row models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindProductsByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) CountProducts(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Product{}).Count(&count).Error
	return count, err
}

// LatestPrice returns the record with the greatest effective date, or nil.
func (r *repository) LatestPrice(ctx context.Context, productID string) (*models.PriceRecord, error) {
	var row models.PriceRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("effective_date DESC").
		Limit(1).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) LatestPrices(ctx context.Context, productIDs []string) (map[string]models.PriceRecord, error) {
	out := make(map[string]models.PriceRecord, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []models.PriceRecord
	err := r.db.WithContext(ctx).
		Table("price_records AS p").
		Select("p.*").
		Where("p.product_id IN ?", productIDs).
		Where("p.effective_date = (SELECT MAX(p2.effective_date) FROM price_records p2 WHERE p2.product_id = p.product_id)").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = row
	}
	return out, nil
}

func (r *repository) PriceHistory(ctx context.Context, productID string) ([]models.PriceRecord, error) {
	var rows []models.PriceRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("effective_date DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) AppendPrice(ctx context.Context, record *models.PriceRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) UpsertCustomer(ctx context.Context, row *models.Customer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func (r *repository) UpsertEmployee(ctx context.Context, row *models.Employee) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func (r *repository) UpsertProduct(ctx context.Context, row *models.Product) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}
