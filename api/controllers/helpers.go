package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/api/middleware"
	"github.com/angelmondragon/salesledger/api/responses"
	"github.com/angelmondragon/salesledger/internal/access"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

func principalFrom(r *http.Request) (access.Principal, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || principal.ID == uuid.Nil {
		return access.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal context missing")
	}
	return principal, nil
}

func pathParam(r *http.Request, name, label string) (string, error) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", label)
	}
	return value, nil
}

func pathUUID(r *http.Request, name, label string) (uuid.UUID, error) {
	raw, err := pathParam(r, name, label)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}

// handle adapts fn to an http.HandlerFunc; a returned error is written as
// the error envelope.
func handle(logg *logger.Logger, fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

func unavailable(service string) error {
	return pkgerrors.Newf(pkgerrors.CodeInternal, "%s service unavailable", service)
}

// orderTarget is the caller and the path ids of an /orders/{orderID} route.
type orderTarget struct {
	principal access.Principal
	orderID   string
	productID string
}

func orderRoute(r *http.Request, withProduct bool) (orderTarget, error) {
	var (
		t   orderTarget
		err error
	)
	if t.principal, err = principalFrom(r); err != nil {
		return t, err
	}
	if t.orderID, err = pathParam(r, "orderID", "order id"); err != nil {
		return t, err
	}
	if withProduct {
		t.productID, err = pathParam(r, "productID", "product id")
	}
	return t, err
}
