package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/salesledger/api/middleware"
	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/internal/orders"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

type mutatorCall struct {
	op        string
	orderID   string
	productID string
	quantity  int
}

type stubMutator struct {
	calls []mutatorCall
	err   error
}

func (s *stubMutator) record(c mutatorCall) error {
	s.calls = append(s.calls, c)
	return s.err
}

func (s *stubMutator) CreateOrder(_ context.Context, _ access.Principal, _ orders.CreateOrderInput) (string, error) {
	return "TR0001", s.record(mutatorCall{op: "create"})
}

func (s *stubMutator) UpdateOrderHeader(_ context.Context, _ access.Principal, orderID string, _ orders.HeaderInput) error {
	return s.record(mutatorCall{op: "header", orderID: orderID})
}

func (s *stubMutator) ReplaceOrderLineItems(_ context.Context, _ access.Principal, orderID string, lines []orders.LineInput) error {
	return s.record(mutatorCall{op: "replace", orderID: orderID, quantity: len(lines)})
}

func (s *stubMutator) UpdateLineItemQuantity(_ context.Context, _ access.Principal, orderID, productID string, quantity int) error {
	return s.record(mutatorCall{op: "update_line", orderID: orderID, productID: productID, quantity: quantity})
}

func (s *stubMutator) DeleteLineItem(_ context.Context, _ access.Principal, orderID, productID string) error {
	return s.record(mutatorCall{op: "delete_line", orderID: orderID, productID: productID})
}

func (s *stubMutator) DeleteOrder(_ context.Context, _ access.Principal, orderID string) error {
	return s.record(mutatorCall{op: "delete", orderID: orderID})
}

func orderRouter(svc orders.Mutator) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
	r := chi.NewRouter()
	r.Post("/orders", OrderCreate(svc, logg))
	r.Patch("/orders/{orderID}", OrderUpdateHeader(svc, logg))
	r.Delete("/orders/{orderID}", OrderDelete(svc, logg))
	r.Patch("/orders/{orderID}/lines/{productID}", OrderUpdateLine(svc, logg))
	r.Delete("/orders/{orderID}/lines/{productID}", OrderDeleteLine(svc, logg))
	return r
}

func serve(t *testing.T, h http.Handler, method, target, body string, signedIn bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if signedIn {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), access.Principal{ID: uuid.New(), Role: enums.RoleUser}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestOrderUpdateLinePassesPathAndBody(t *testing.T) {
	svc := &stubMutator{}
	rec := serve(t, orderRouter(svc), http.MethodPatch, "/orders/TR0042/lines/P7", `{"quantity":3}`, true)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []mutatorCall{{op: "update_line", orderID: "TR0042", productID: "P7", quantity: 3}}, svc.calls)
}

func TestBodylessOrderWritesIgnoreBody(t *testing.T) {
	svc := &stubMutator{}
	h := orderRouter(svc)

	assert.Equal(t, http.StatusNoContent, serve(t, h, http.MethodDelete, "/orders/TR0042/lines/P7", "", true).Code)
	assert.Equal(t, http.StatusNoContent, serve(t, h, http.MethodDelete, "/orders/TR0042", "", true).Code)
	assert.Equal(t, []mutatorCall{
		{op: "delete_line", orderID: "TR0042", productID: "P7"},
		{op: "delete", orderID: "TR0042"},
	}, svc.calls)
}

func TestOrderWritesRejectBadBodyBeforeService(t *testing.T) {
	svc := &stubMutator{}
	rec := serve(t, orderRouter(svc), http.MethodPatch, "/orders/TR0042/lines/P7", `{"quantity":"three"}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
	assert.Empty(t, svc.calls)
}

func TestOrderWritesNeedPrincipal(t *testing.T) {
	svc := &stubMutator{}
	rec := serve(t, orderRouter(svc), http.MethodDelete, "/orders/TR0042", "", false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestOrderWritesMapServiceErrors(t *testing.T) {
	svc := &stubMutator{err: pkgerrors.New(pkgerrors.CodeNotFound, "order TR0042 not found")}
	rec := serve(t, orderRouter(svc), http.MethodDelete, "/orders/TR0042", "", true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeNotFound), errorCode(t, rec))
}

func TestOrderCreateAnswersCreated(t *testing.T) {
	svc := &stubMutator{}
	rec := serve(t, orderRouter(svc), http.MethodPost, "/orders", `{"header":{"date":"2025-03-01"},"lines":[{"product_id":"P1","quantity":1}]}`, true)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":{"order_id":"TR0001"}}`, rec.Body.String())
}

func TestOrderHandlersWithoutService(t *testing.T) {
	rec := serve(t, orderRouter(nil), http.MethodDelete, "/orders/TR0042", "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
