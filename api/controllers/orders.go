package controllers

import (
	"net/http"

	"github.com/angelmondragon/salesledger/api/responses"
	"github.com/angelmondragon/salesledger/api/validators"
	"github.com/angelmondragon/salesledger/internal/orders"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

type replaceLinesRequest struct {
	Lines []orders.LineInput `json:"lines" validate:"dive"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
}

// OrdersList returns order headers filtered by ?q= and ordered by ?sort=&dir=.
func OrdersList(svc orders.Aggregator, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("orders")
		}
		principal, err := principalFrom(r)
		if err != nil {
			return err
		}
		q := r.URL.Query()
		list, err := svc.ListOrders(r.Context(), principal, orders.ListQuery{
			Query:     validators.SearchText(r, "q"),
			Sort:      q.Get("sort"),
			Direction: q.Get("dir"),
		})
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, list)
		return nil
	})
}

// OrderDetail returns the display rows of one order, optionally filtered by ?q=.
func OrderDetail(svc orders.Aggregator, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("orders")
		}
		t, err := orderRoute(r, false)
		if err != nil {
			return err
		}
		detail, err := svc.GetOrderDetail(r.Context(), t.principal, t.orderID, validators.SearchText(r, "q"))
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, detail)
		return nil
	})
}

func OrderCreate(svc orders.Mutator, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("orders")
		}
		principal, err := principalFrom(r)
		if err != nil {
			return err
		}
		var body orders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		orderID, err := svc.CreateOrder(r.Context(), principal, body)
		if err != nil {
			return err
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createOrderResponse{OrderID: orderID})
		return nil
	})
}

// mutateOrder covers the order writes that answer 204: it resolves the
// route, decodes the JSON body into B unless B is struct{}, then runs apply.
func mutateOrder[B any](svc orders.Mutator, logg *logger.Logger, withProduct bool, apply func(r *http.Request, t orderTarget, body B) error) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("orders")
		}
		t, err := orderRoute(r, withProduct)
		if err != nil {
			return err
		}
		var body B
		if _, bodyless := any(body).(struct{}); !bodyless {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				return err
			}
		}
		if err := apply(r, t, body); err != nil {
			return err
		}
		responses.WriteNoContent(w)
		return nil
	})
}

func OrderUpdateHeader(svc orders.Mutator, logg *logger.Logger) http.HandlerFunc {
	return mutateOrder(svc, logg, false, func(r *http.Request, t orderTarget, body orders.HeaderInput) error {
		return svc.UpdateOrderHeader(r.Context(), t.principal, t.orderID, body)
	})
}

func OrderReplaceLines(svc orders.Mutator, logg *logger.Logger) http.HandlerFunc {
	return mutateOrder(svc, logg, false, func(r *http.Request, t orderTarget, body replaceLinesRequest) error {
		return svc.ReplaceOrderLineItems(r.Context(), t.principal, t.orderID, body.Lines)
	})
}

func OrderUpdateLine(svc orders.Mutator, logg *logger.Logger) http.HandlerFunc {
	return mutateOrder(svc, logg, true, func(r *http.Request, t orderTarget, body updateQuantityRequest) error {
		return svc.UpdateLineItemQuantity(r.Context(), t.principal, t.orderID, t.productID, body.Quantity)
	})
}

func OrderDeleteLine(svc orders.Mutator, logg *logger.Logger) http.HandlerFunc {
	return mutateOrder(svc, logg, true, func(r *http.Request, t orderTarget, _ struct{}) error {
		return svc.DeleteLineItem(r.Context(), t.principal, t.orderID, t.productID)
	})
}

func OrderDelete(svc orders.Mutator, logg *logger.Logger) http.HandlerFunc {
	return mutateOrder(svc, logg, false, func(r *http.Request, t orderTarget, _ struct{}) error {
		return svc.DeleteOrder(r.Context(), t.principal, t.orderID)
	})
}
