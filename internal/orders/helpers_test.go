package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/internal/pricing"
	"github.com/angelmondragon/salesledger/internal/reference"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/dbtest"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/outbox"
)

type world struct {
	conn       *gorm.DB
	repo       Repository
	access     access.Service
	reference  referenceReader
	prices     priceResolver
	aggregator Aggregator
	mutator    Mutator
}

type worldOption func(*MutatorParams)

func withIDs(ids IDGenerator) worldOption {
	return func(p *MutatorParams) { p.IDs = ids }
}

func newWorld(t *testing.T, opts ...worldOption) *world {
	t.Helper()
	conn := dbtest.Open(t)
	refRepo := reference.NewRepository(conn)
	resolver, err := pricing.NewResolver(refRepo)
	require.NoError(t, err)
	accessSvc, err := access.NewService(access.ServiceParams{
		Repo:   access.NewRepository(conn),
		TX:     dbpkg.NewFromConn(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)

	repo := NewRepository(conn)
	agg, err := NewAggregator(AggregatorParams{
		Repo:      repo,
		Reference: refRepo,
		Prices:    resolver,
		Access:    accessSvc,
	})
	require.NoError(t, err)

	params := MutatorParams{
		Repo:      repo,
		Reference: refRepo,
		Prices:    resolver,
		Access:    accessSvc,
		TX:        dbpkg.NewFromConn(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
	}
	for _, opt := range opts {
		opt(&params)
	}
	mut, err := NewMutator(params)
	require.NoError(t, err)

	return &world{
		conn:       conn,
		repo:       repo,
		access:     accessSvc,
		reference:  refRepo,
		prices:     resolver,
		aggregator: agg,
		mutator:    mut,
	}
}

// seedCatalog loads C1/E1 and products P1..P3; only P1 and P2 are priced.
func (w *world) seedCatalog(t *testing.T) {
	t.Helper()
	dbtest.MustCustomer(t, w.conn, "C1", "Acme Corp", "1 Main St")
	dbtest.MustCustomer(t, w.conn, "C2", "Beta LLC", "2 Side St")
	dbtest.MustEmployee(t, w.conn, "E1", "Ada", "Lovelace")
	dbtest.MustProduct(t, w.conn, "P1", "Widget", "pc")
	dbtest.MustProduct(t, w.conn, "P2", "Gadget", "box")
	dbtest.MustProduct(t, w.conn, "P3", "", "kg")
	dbtest.MustPrice(t, w.conn, "P1", "2023-06-01", "8.00")
	dbtest.MustPrice(t, w.conn, "P1", "2023-12-01", "10.00")
	dbtest.MustPrice(t, w.conn, "P2", "2023-12-01", "3.50")
}

func (w *world) principal(t *testing.T, email string, role enums.Role) access.Principal {
	t.Helper()
	row := dbtest.MustPrincipal(t, w.conn, email, role)
	return access.Principal{ID: row.ID, Email: row.Email, Role: row.Role}
}

func (w *world) lines(t *testing.T, orderID string) []models.OrderLineItem {
	t.Helper()
	items, err := w.repo.FindLineItems(context.Background(), orderID)
	require.NoError(t, err)
	return items
}

func (w *world) events(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, w.conn.Where("event_type = ?", eventType).Order("created_at").Find(&rows).Error)
	return rows
}

func sequenceIDs(ids ...string) IDGenerator {
	i := 0
	return func() (string, error) {
		id := ids[i%len(ids)]
		i++
		return id, nil
	}
}

func header(date, customer, employee string) HeaderInput {
	h := HeaderInput{Date: date}
	if customer != "" {
		h.CustomerID = dbtest.Ptr(customer)
	}
	if employee != "" {
		h.EmployeeID = dbtest.Ptr(employee)
	}
	return h
}
