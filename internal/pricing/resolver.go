// Package pricing resolves the current unit price of products from the
// append-only price history.
//
// The current price is the record with the greatest effective date, even
// when that date lies in the future. Nothing is cached: every call reads the
// store, so a newly appended record is visible to the next call.
package pricing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
)

// PriceReader is the slice of the reference repository the resolver needs.
type PriceReader interface {
	LatestPrice(ctx context.Context, productID string) (*models.PriceRecord, error)
	LatestPrices(ctx context.Context, productIDs []string) (map[string]models.PriceRecord, error)
}

type Resolver interface {
	// CurrentPrice returns nil when the product has no price record.
	CurrentPrice(ctx context.Context, productID string) (*decimal.Decimal, error)
	// CurrentPrices omits products without a price record.
	CurrentPrices(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error)
}

type resolver struct {
	prices PriceReader
}

func NewResolver(prices PriceReader) (Resolver, error) {
	if prices == nil {
		return nil, errors.New("price reader required")
	}
	return &resolver{prices: prices}, nil
}

func (r *resolver) CurrentPrice(ctx context.Context, productID string) (*decimal.Decimal, error) {
	record, err := r.prices.LatestPrice(ctx, productID)
	if err != nil {
		return nil, dbpkg.StoreError(err, "resolve current price")
	}
	if record == nil {
		return nil, nil
	}
	price := record.UnitPrice
	return &price, nil
}

func (r *resolver) CurrentPrices(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	records, err := r.prices.LatestPrices(ctx, dedupe(productIDs))
	if err != nil {
		return nil, dbpkg.StoreError(err, "resolve current prices")
	}
	for id, record := range records {
		out[id] = record.UnitPrice
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
