package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/salesledger/api/responses"
	"github.com/angelmondragon/salesledger/api/validators"
	"github.com/angelmondragon/salesledger/internal/reference"
	"github.com/angelmondragon/salesledger/pkg/dates"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

type currentPricer interface {
	CurrentPrice(ctx context.Context, productID string) (*decimal.Decimal, error)
}

type currentPriceResponse struct {
	ProductID string           `json:"product_id"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type appendPriceRequest struct {
	EffectiveDate string `json:"effective_date" validate:"required"`
	UnitPrice     string `json:"unit_price" validate:"required"`
}

func (req appendPriceRequest) parse() (time.Time, decimal.Decimal, error) {
	effective, err := dates.Parse(req.EffectiveDate)
	if err != nil {
		return time.Time{}, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid effective_date")
	}
	amount, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		return time.Time{}, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit_price")
	}
	return effective, amount, nil
}

func parseKind(r *http.Request) (enums.ReferenceKind, error) {
	raw, err := pathParam(r, "kind", "reference kind")
	if err != nil {
		return "", err
	}
	kind, err := enums.ParseReferenceKind(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown reference kind")
	}
	return kind, nil
}

// ReferenceSearch lists reference rows of one kind matching ?q=.
func ReferenceSearch(svc reference.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("reference")
		}
		kind, err := parseKind(r)
		if err != nil {
			return err
		}
		rows, err := svc.Search(r.Context(), kind, validators.SearchText(r, "q"))
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, rows)
		return nil
	})
}

func ReferenceGet(svc reference.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("reference")
		}
		kind, err := parseKind(r)
		if err != nil {
			return err
		}
		id, err := pathParam(r, "id", "id")
		if err != nil {
			return err
		}
		row, err := svc.Get(r.Context(), kind, id)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, row)
		return nil
	})
}

// ProductPrice returns the current unit price, null when none is recorded.
func ProductPrice(prices currentPricer, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if prices == nil {
			return unavailable("price")
		}
		productID, err := pathParam(r, "productID", "product id")
		if err != nil {
			return err
		}
		price, err := prices.CurrentPrice(r.Context(), productID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, currentPriceResponse{ProductID: productID, UnitPrice: price})
		return nil
	})
}

func ProductPriceHistory(svc reference.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("reference")
		}
		productID, err := pathParam(r, "productID", "product id")
		if err != nil {
			return err
		}
		history, err := svc.PriceHistory(r.Context(), productID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, history)
		return nil
	})
}

// AdminAppendPrice records a new dated price. Earlier records are never changed.
func AdminAppendPrice(svc reference.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("reference")
		}
		productID, err := pathParam(r, "productID", "product id")
		if err != nil {
			return err
		}
		var body appendPriceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		effective, amount, err := body.parse()
		if err != nil {
			return err
		}
		record, err := svc.AppendPrice(r.Context(), productID, effective, amount)
		if err != nil {
			return err
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
		return nil
	})
}
