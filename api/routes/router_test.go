package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/internal/orders"
	"github.com/angelmondragon/salesledger/internal/pricing"
	"github.com/angelmondragon/salesledger/internal/reference"
	"github.com/angelmondragon/salesledger/internal/reports"
	pkgAuth "github.com/angelmondragon/salesledger/pkg/auth"
	"github.com/angelmondragon/salesledger/pkg/config"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/dbtest"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/outbox"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type server struct {
	t       *testing.T
	conn    *gorm.DB
	cfg     *config.Config
	handler http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: "*"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "salesledger", ExpirationMinutes: 15},
	}
}

func newServer(t *testing.T, db stubPinger) *server {
	t.Helper()
	conn := dbtest.Open(t)
	cfg := testConfig()
	tx := dbpkg.NewFromConn(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	accessRepo := access.NewRepository(conn)
	accessSvc, err := access.NewService(access.ServiceParams{Repo: accessRepo, TX: tx, Outbox: emitter})
	require.NoError(t, err)

	refRepo := reference.NewRepository(conn)
	refSvc, err := reference.NewService(reference.ServiceParams{Repo: refRepo})
	require.NoError(t, err)
	resolver, err := pricing.NewResolver(refRepo)
	require.NoError(t, err)

	orderRepo := orders.NewRepository(conn)
	agg, err := orders.NewAggregator(orders.AggregatorParams{Repo: orderRepo, Reference: refRepo, Prices: resolver, Access: accessSvc})
	require.NoError(t, err)
	mut, err := orders.NewMutator(orders.MutatorParams{
		Repo: orderRepo, Reference: refRepo, Prices: resolver, Access: accessSvc, TX: tx, Outbox: emitter,
	})
	require.NoError(t, err)
	reportSvc, err := reports.NewService(reports.ServiceParams{Orders: orderRepo, Principals: accessSvc, Products: refRepo, Details: agg})
	require.NoError(t, err)

	handler := NewRouter(Deps{
		Config:         cfg,
		DB:             db,
		Sessions:       stubSessions{},
		Access:         accessSvc,
		Reference:      refSvc,
		Prices:         resolver,
		Aggregator:     agg,
		Mutator:        mut,
		Reports:        reportSvc,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "# metrics\n") }),
	})

	dbtest.MustCustomer(t, conn, "C1", "Acme Corp", "1 Main St")
	dbtest.MustEmployee(t, conn, "E1", "Ada", "Lovelace")
	dbtest.MustProduct(t, conn, "P1", "Widget", "pc")
	dbtest.MustProduct(t, conn, "P2", "Gadget", "box")
	dbtest.MustPrice(t, conn, "P1", "2024-01-01", "10.00")
	dbtest.MustPrice(t, conn, "P2", "2024-01-01", "2.50")

	return &server{t: t, conn: conn, cfg: cfg, handler: handler}
}

func (s *server) principal(email string, role enums.Role) (uuid.UUID, string) {
	s.t.Helper()
	row := dbtest.MustPrincipal(s.t, s.conn, email, role)
	// Blocked principals cannot be minted a token; sign as user and let the
	// store decide.
	tokenRole := role
	if role == enums.RoleBlocked {
		tokenRole = enums.RoleUser
	}
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		PrincipalID: row.ID,
		Email:       row.Email,
		Role:        tokenRole,
	})
	require.NoError(s.t, err)
	return row.ID, token
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
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

func createBody() map[string]any {
	return map[string]any{
		"header": map[string]any{"date": "2024-03-01", "customer_id": "C1", "employee_id": "E1"},
		"lines": []map[string]any{
			{"product_id": "P1", "quantity": 2},
			{"product_id": "P2", "quantity": 4},
		},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, stubPinger{})
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/ready", "", nil).Code)

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")

	down := newServer(t, stubPinger{err: errors.New("connection refused")})
	rec = down.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeDependency), errorCode(t, rec))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newServer(t, stubPinger{})
	rec := s.do(http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeUnauthorized), errorCode(t, rec))
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newServer(t, stubPinger{})
	_, token := s.principal("clerk@example.com", enums.RoleUser)

	rec := s.do(http.MethodPost, "/api/v1/orders", token, createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		OrderID string `json:"order_id"`
	}
	decodeData(t, rec, &created)
	assert.Regexp(t, `^TR\d{4}$`, created.OrderID)

	rec = s.do(http.MethodGet, "/api/v1/orders?sort=date&dir=desc", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orders.OrderSummary
	decodeData(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.OrderID, list[0].ID)

	rec = s.do(http.MethodGet, "/api/v1/orders/"+created.OrderID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail orders.OrderDetail
	decodeData(t, rec, &detail)
	require.Len(t, detail.Rows, 2)
	assert.Equal(t, "Acme Corp", detail.CustomerName)
	assert.Equal(t, "30.00", detail.Total.StringFixed(2))

	rec = s.do(http.MethodPatch, "/api/v1/orders/"+created.OrderID+"/lines/P2", token, map[string]any{"quantity": 1})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/reports/orders/"+created.OrderID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report reports.SalesReport
	decodeData(t, rec, &report)
	assert.Equal(t, "22.50", report.GrandTotal.StringFixed(2))

	rec = s.do(http.MethodPatch, "/api/v1/orders/"+created.OrderID+"/lines/P2", token, map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/api/v1/orders/"+created.OrderID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/orders/"+created.OrderID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrderValidationOverHTTP(t *testing.T) {
	s := newServer(t, stubPinger{})
	_, token := s.principal("clerk@example.com", enums.RoleUser)

	body := createBody()
	body["lines"] = []map[string]any{{"product_id": "P404", "quantity": 1}}
	rec := s.do(http.MethodPost, "/api/v1/orders", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))

	rec = s.do(http.MethodPost, "/api/v1/orders", token, map[string]any{"unexpected": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlagsAndRolesAreReadFromTheStore(t *testing.T) {
	s := newServer(t, stubPinger{})
	userID, token := s.principal("clerk@example.com", enums.RoleUser)
	dbtest.MustPermissions(t, s.conn, userID, true, true, false)

	rec := s.do(http.MethodPost, "/api/v1/orders", token, createBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		OrderID string `json:"order_id"`
	}
	decodeData(t, rec, &created)

	rec = s.do(http.MethodDelete, "/api/v1/orders/"+created.OrderID, token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, blockedToken := s.principal("gone@example.com", enums.RoleBlocked)
	rec = s.do(http.MethodGet, "/api/v1/me", blockedToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeAccessRevoked), errorCode(t, rec))
}

func TestOrderWritesCheckPermissionBeforeBody(t *testing.T) {
	s := newServer(t, stubPinger{})
	userID, token := s.principal("clerk@example.com", enums.RoleUser)
	dbtest.MustPermissions(t, s.conn, userID, true, false, true)
	rec := s.do(http.MethodPost, "/api/v1/orders", token, createBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		OrderID string `json:"order_id"`
	}
	decodeData(t, rec, &created)

	rec = s.do(http.MethodPatch, "/api/v1/orders/"+created.OrderID+"/lines/P2", token, map[string]any{"quantity": "lots"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeForbidden), errorCode(t, rec))

	rec = s.do(http.MethodPut, "/api/v1/orders/"+created.OrderID+"/lines", token, map[string]any{"unexpected": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateOrderRejectsOversizedID(t *testing.T) {
	s := newServer(t, stubPinger{})
	_, token := s.principal("clerk@example.com", enums.RoleUser)

	body := createBody()
	body["header"].(map[string]any)["id"] = "ORDER-0001"
	rec := s.do(http.MethodPost, "/api/v1/orders", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t, stubPinger{})
	userID, userToken := s.principal("clerk@example.com", enums.RoleUser)
	_, adminToken := s.principal("boss@example.com", enums.RoleAdmin)

	rec := s.do(http.MethodGet, "/api/v1/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []access.Principal
	decodeData(t, rec, &users)
	assert.Len(t, users, 2)

	rec = s.do(http.MethodPut, "/api/v1/admin/users/"+userID.String()+"/permissions", adminToken, map[string]any{
		"can_create": false, "can_edit": true, "can_delete": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/v1/orders", userToken, createBody())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/admin/users/"+userID.String()+"/role", adminToken, map[string]any{"role": "blocked"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result access.Result
	decodeData(t, rec, &result)
	assert.True(t, result.Success)

	// The user's token is unchanged but the store now says blocked.
	rec = s.do(http.MethodGet, "/api/v1/me", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeAccessRevoked), errorCode(t, rec))

	rec = s.do(http.MethodPut, "/api/v1/admin/users/not-a-uuid/role", adminToken, map[string]any{"role": "user"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferenceAndPricingRoutes(t *testing.T) {
	s := newServer(t, stubPinger{})
	_, token := s.principal("clerk@example.com", enums.RoleUser)
	_, adminToken := s.principal("boss@example.com", enums.RoleAdmin)

	rec := s.do(http.MethodGet, "/api/v1/reference/customers?q=acme", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var customers []reference.CustomerDTO
	decodeData(t, rec, &customers)
	require.Len(t, customers, 1)
	assert.Equal(t, "C1", customers[0].ID)

	rec = s.do(http.MethodGet, "/api/v1/reference/widgets", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/products/P1/price", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var price struct {
		UnitPrice *decimal.Decimal `json:"unit_price"`
	}
	decodeData(t, rec, &price)
	require.NotNil(t, price.UnitPrice)
	assert.Equal(t, "10.00", price.UnitPrice.StringFixed(2))

	rec = s.do(http.MethodPost, "/api/v1/admin/products/P1/prices", token, map[string]any{"effective_date": "2024-06-01", "unit_price": "12.00"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/admin/products/P1/prices", adminToken, map[string]any{"effective_date": "2024-06-01", "unit_price": "12.00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/products/P1/prices", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []reference.PriceRecordDTO
	decodeData(t, rec, &history)
	assert.Len(t, history, 2)

	rec = s.do(http.MethodGet, "/api/v1/dashboard/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary reports.Summary
	decodeData(t, rec, &summary)
	assert.EqualValues(t, 2, summary.Products)
	assert.EqualValues(t, 2, summary.Principals)
}
