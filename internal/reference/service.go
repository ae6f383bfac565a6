package reference

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
)

const (
	DefaultSearchLimit        = 200
	DefaultProductSearchLimit = 50
)

// Service is the read surface for customers, employees, products and prices.
type Service interface {
	Search(ctx context.Context, kind enums.ReferenceKind, query string) ([]Entity, error)
	Get(ctx context.Context, kind enums.ReferenceKind, id string) (Entity, error)
	PriceHistory(ctx context.Context, productID string) ([]PriceRecordDTO, error)
	AppendPrice(ctx context.Context, productID string, effective time.Time, unitPrice decimal.Decimal) (*PriceRecordDTO, error)
}

type ServiceParams struct {
	Repo               Repository
	SearchLimit        int
	ProductSearchLimit int
}

type service struct {
	repo         Repository
	limit        int
	productLimit int
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("reference repository required")
	}
	limit := params.SearchLimit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	productLimit := params.ProductSearchLimit
	if productLimit <= 0 {
		productLimit = DefaultProductSearchLimit
	}
	return &service{repo: params.Repo, limit: limit, productLimit: productLimit}, nil
}

func (s *service) Search(ctx context.Context, kind enums.ReferenceKind, query string) ([]Entity, error) {
	query = strings.TrimSpace(query)
	switch kind {
	case enums.ReferenceCustomer:
		rows, err := s.repo.SearchCustomers(ctx, query, s.limit)
		if err != nil {
			return nil, dbpkg.StoreError(err, "search customers")
		}
		out := make([]Entity, 0, len(rows))
		for _, row := range rows {
			out = append(out, FromCustomer(row))
		}
		return out, nil
	case enums.ReferenceEmployee:
		rows, err := s.repo.SearchEmployees(ctx, query, s.limit)
		if err != nil {
			return nil, dbpkg.StoreError(err, "search employees")
		}
		out := make([]Entity, 0, len(rows))
		for _, row := range rows {
			out = append(out, FromEmployee(row))
		}
		return out, nil
	case enums.ReferenceProduct:
		rows, err := s.repo.SearchProducts(ctx, query, s.productLimit)
		if err != nil {
			return nil, dbpkg.StoreError(err, "search products")
		}
		out := make([]Entity, 0, len(rows))
		for _, row := range rows {
			out = append(out, FromProduct(row))
		}
		return out, nil
	case enums.ReferencePrice:
		rows, err := s.repo.SearchPrices(ctx, query, s.limit)
		if err != nil {
			return nil, dbpkg.StoreError(err, "search price history")
		}
		out := make([]Entity, 0, len(rows))
		for _, row := range rows {
			out = append(out, FromPriceRecord(row))
		}
		return out, nil
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown reference kind %q", kind)
}

func (s *service) Get(ctx context.Context, kind enums.ReferenceKind, id string) (Entity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}

	var (
		entity Entity
		err    error
	)
	switch kind {
	case enums.ReferenceCustomer:
		var row *models.Customer
		if row, err = s.repo.FindCustomer(ctx, id); err == nil {
			entity = FromCustomer(*row)
		}
	case enums.ReferenceEmployee:
		var row *models.Employee
		if row, err = s.repo.FindEmployee(ctx, id); err == nil {
			entity = FromEmployee(*row)
		}
	case enums.ReferenceProduct:
		var row *models.Product
		if row, err = s.repo.FindProduct(ctx, id); err == nil {
			entity = FromProduct(*row)
		}
	case enums.ReferencePrice:
		var row *models.PriceRecord
		if row, err = s.repo.LatestPrice(ctx, id); err == nil {
			if row == nil {
				return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no price recorded for %s", id)
			}
			entity = FromPriceRecord(*row)
		}
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown reference kind %q", kind)
	}

	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %s not found", kind, id)
		}
		return nil, dbpkg.StoreError(err, "load "+kind.String())
	}
	return entity, nil
}

func (s *service) PriceHistory(ctx context.Context, productID string) ([]PriceRecordDTO, error) {
	rows, err := s.repo.PriceHistory(ctx, productID)
	if err != nil {
		return nil, dbpkg.StoreError(err, "load price history")
	}
	out := make([]PriceRecordDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromPriceRecord(row))
	}
	return out, nil
}

func (s *service) AppendPrice(ctx context.Context, productID string, effective time.Time, unitPrice decimal.Decimal) (*PriceRecordDTO, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if effective.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "effective date is required")
	}
	if unitPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}
	if _, err := s.repo.FindProduct(ctx, productID); err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown product %s", productID)
		}
		return nil, dbpkg.StoreError(err, "load product")
	}

	record := &models.PriceRecord{
		ProductID:     productID,
		EffectiveDate: effective.UTC().Truncate(24 * time.Hour),
		UnitPrice:     unitPrice.Round(2),
	}
	if err := s.repo.AppendPrice(ctx, record); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "price for %s on %s already recorded", productID, record.EffectiveDate.Format("2006-01-02"))
		}
		return nil, dbpkg.StoreError(err, "append price")
	}
	dto := FromPriceRecord(*record)
	return &dto, nil
}
