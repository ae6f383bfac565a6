// Package seed loads customers, employees, products and dated prices from a
// YAML document into the reference tables.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/internal/reference"
	"github.com/angelmondragon/salesledger/pkg/dates"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Stats counts what a Load call wrote.
type Stats struct {
	Customers     int
	Employees     int
	Products      int
	PricesAdded   int
	PricesSkipped int
}

type Loader struct {
	tx   txRunner
	repo reference.Repository
	logg *logger.Logger
}

func NewLoader(tx txRunner, repo reference.Repository, logg *logger.Logger) (*Loader, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("reference repository required")
	}
	return &Loader{tx: tx, repo: repo, logg: logg}, nil
}

// Load converts doc into rows and writes them in one transaction. Existing
// reference rows are overwritten; a price already recorded for the same
// product and day is left untouched.
func (l *Loader) Load(ctx context.Context, doc *Document) (Stats, error) {
	var stats Stats
	if doc == nil {
		return stats, pkgerrors.New(pkgerrors.CodeValidation, "seed document required")
	}
	rows, err := convert(doc)
	if err != nil {
		return stats, err
	}

	err = l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		for i := range rows.customers {
			if err := repo.UpsertCustomer(ctx, &rows.customers[i]); err != nil {
				return dbpkg.StoreError(err, "upsert customer "+rows.customers[i].ID)
			}
			stats.Customers++
		}
		for i := range rows.employees {
			if err := repo.UpsertEmployee(ctx, &rows.employees[i]); err != nil {
				return dbpkg.StoreError(err, "upsert employee "+rows.employees[i].ID)
			}
			stats.Employees++
		}
		for i := range rows.products {
			if err := repo.UpsertProduct(ctx, &rows.products[i]); err != nil {
				return dbpkg.StoreError(err, "upsert product "+rows.products[i].ID)
			}
			stats.Products++
		}

		recorded := map[string]map[string]bool{}
		for i := range rows.prices {
			price := &rows.prices[i]
			days, ok := recorded[price.ProductID]
			if !ok {
				history, err := repo.PriceHistory(ctx, price.ProductID)
				if err != nil {
					return dbpkg.StoreError(err, "load price history")
				}
				days = make(map[string]bool, len(history))
				for _, h := range history {
					days[dates.Format(h.EffectiveDate)] = true
				}
				recorded[price.ProductID] = days
			}
			day := dates.Format(price.EffectiveDate)
			if days[day] {
				stats.PricesSkipped++
				continue
			}
			if _, err := repo.FindProduct(ctx, price.ProductID); err != nil {
				if dbpkg.IsNotFound(err) {
					return pkgerrors.Newf(pkgerrors.CodeValidation, "price references unknown product %s", price.ProductID)
				}
				return dbpkg.StoreError(err, "load product")
			}
			if err := repo.AppendPrice(ctx, price); err != nil {
				return dbpkg.StoreError(err, "append price")
			}
			days[day] = true
			stats.PricesAdded++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	if l.logg != nil {
		l.logg.Info(l.logg.WithFields(ctx, map[string]any{
			"customers":      stats.Customers,
			"employees":      stats.Employees,
			"products":       stats.Products,
			"prices_added":   stats.PricesAdded,
			"prices_skipped": stats.PricesSkipped,
		}), "reference data seeded")
	}
	return stats, nil
}

type rowSet struct {
	customers []models.Customer
	employees []models.Employee
	products  []models.Product
	prices    []models.PriceRecord
}

func convert(doc *Document) (*rowSet, error) {
	out := &rowSet{}
	for _, c := range doc.Customers {
		out.customers = append(out.customers, models.Customer{
			ID:          strings.TrimSpace(c.ID),
			Name:        strings.TrimSpace(c.Name),
			Address:     optional(c.Address),
			PaymentTerm: optional(c.PaymentTerm),
		})
	}
	for _, e := range doc.Employees {
		row := models.Employee{
			ID:        strings.TrimSpace(e.ID),
			FirstName: strings.TrimSpace(e.FirstName),
			LastName:  strings.TrimSpace(e.LastName),
			Gender:    optional(e.Gender),
		}
		var err error
		if row.BirthDate, err = optionalDate(e.BirthDate, "employee "+row.ID+" birth_date"); err != nil {
			return nil, err
		}
		if row.HireDate, err = optionalDate(e.HireDate, "employee "+row.ID+" hire_date"); err != nil {
			return nil, err
		}
		if row.SeparationDate, err = optionalDate(e.SeparationDate, "employee "+row.ID+" separation_date"); err != nil {
			return nil, err
		}
		out.employees = append(out.employees, row)
	}
	for _, p := range doc.Products {
		out.products = append(out.products, models.Product{
			ID:          strings.TrimSpace(p.ID),
			Description: optional(p.Description),
			Unit:        optional(p.Unit),
		})
	}
	for _, p := range doc.Prices {
		effective, err := dates.Parse(p.EffectiveDate)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price for "+p.ProductID)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(p.UnitPrice))
		if err != nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "price for %s has invalid unit_price %q", p.ProductID, p.UnitPrice)
		}
		if amount.IsNegative() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "price for %s must not be negative", p.ProductID)
		}
		out.prices = append(out.prices, models.PriceRecord{
			ProductID:     strings.TrimSpace(p.ProductID),
			EffectiveDate: effective,
			UnitPrice:     amount.Round(2),
		})
	}
	return out, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func optionalDate(value, field string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := dates.Parse(value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, field)
	}
	return &t, nil
}
