package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/pkg/db/dbtest"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

func orderIDs(rows []models.Order) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID)
	}
	return out
}

func seedOrders(t *testing.T, w *world) {
	t.Helper()
	w.seedCatalog(t)
	w.rawOrder(t, "A2", "2024-03-01", dbtest.Ptr("C1"), dbtest.Ptr("E1"))
	w.rawOrder(t, "A1", "2024-03-01", dbtest.Ptr("C2"), nil)
	w.rawOrder(t, "B7", "2023-11-15", nil, dbtest.Ptr("E1"))
}

func TestRepositoryListOrdersSearch(t *testing.T) {
	w := newWorld(t)
	seedOrders(t, w)
	ctx := context.Background()

	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"A1", "A2", "B7"}},
		{"c2", []string{"A1"}},
		{"E1", []string{"A2", "B7"}},
		{"2023-11", []string{"B7"}},
		{"b", []string{"B7"}},
		{"zzz", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rows, err := w.repo.ListOrders(ctx, ListFilter{Query: tc.query, Sort: enums.OrderSortID, Direction: enums.SortAsc})
			require.NoError(t, err)
			assert.Equal(t, tc.want, orderIDs(rows))
		})
	}
}

func TestRepositoryListOrdersSorting(t *testing.T) {
	w := newWorld(t)
	seedOrders(t, w)
	ctx := context.Background()

	rows, err := w.repo.ListOrders(ctx, ListFilter{Sort: enums.OrderSortDate, Direction: enums.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "B7"}, orderIDs(rows), "equal dates fall back to id ascending")

	rows, err = w.repo.ListOrders(ctx, ListFilter{Sort: enums.OrderSortDate, Direction: enums.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"B7", "A1", "A2"}, orderIDs(rows))

	rows, err = w.repo.ListOrders(ctx, ListFilter{Sort: enums.OrderSortID, Direction: enums.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"B7", "A2", "A1"}, orderIDs(rows))

	rows, err = w.repo.ListOrders(ctx, ListFilter{Sort: enums.OrderSortID, Direction: enums.SortAsc, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, orderIDs(rows))
}

func TestRepositoryCounts(t *testing.T) {
	w := newWorld(t)
	seedOrders(t, w)
	w.rawOrder(t, "C3", "2024-04-01", dbtest.Ptr("C1"), nil)
	ctx := context.Background()

	orders, err := w.repo.CountOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), orders)

	customers, err := w.repo.CountActiveCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), customers)
}

func TestRepositoryLineItemWrites(t *testing.T) {
	w := newWorld(t)
	w.seedCatalog(t)
	w.rawOrder(t, "O1", "2024-01-01", nil, nil,
		models.OrderLineItem{ProductID: "P1", Quantity: 1},
		models.OrderLineItem{ProductID: "P2", Quantity: 2},
	)
	ctx := context.Background()

	item, err := w.repo.UpdateLineItemQuantity(ctx, "O1", "P2", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, item.Quantity)

	_, err = w.repo.UpdateLineItemQuantity(ctx, "O1", "P3", 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	item, err = w.repo.DeleteLineItem(ctx, "O1", "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", item.ProductID)
	_, err = w.repo.DeleteLineItem(ctx, "O1", "P1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, w.repo.DeleteOrder(ctx, "O1"))
	assert.Empty(t, w.lines(t, "O1"), "line items cascade with the header")
	assert.ErrorIs(t, w.repo.DeleteOrder(ctx, "O1"), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, w.repo.UpdateOrderHeader(ctx, "O1", Header{Date: dbtest.Date(t, "2024-01-02")}), gorm.ErrRecordNotFound)
}
