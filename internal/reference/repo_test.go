package reference

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/salesledger/pkg/db/dbtest"
	"github.com/angelmondragon/salesledger/pkg/db/models"
)

func TestRepositorySearchCustomersMatchesAnyColumn(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	dbtest.MustCustomer(t, conn, "C0001", "Northwind Traders", "12 Harbor Rd")
	dbtest.MustCustomer(t, conn, "C0002", "Contoso", "1 North Ave")
	dbtest.MustCustomer(t, conn, "C0003", "Fabrikam", "9 South St")

	rows, err := repo.SearchCustomers(ctx, "NORTH", 200)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C0001", rows[0].ID)
	assert.Equal(t, "C0002", rows[1].ID)

	rows, err = repo.SearchCustomers(ctx, "c0003", 200)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = repo.SearchCustomers(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRepositorySearchProductsHandlesNullColumns(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	dbtest.MustProduct(t, conn, "P0001", "", "pc")
	dbtest.MustProduct(t, conn, "P0002", "Steel Bolt", "box")

	rows, err := repo.SearchProducts(ctx, "bolt", 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "P0002", rows[0].ID)

	rows, err = repo.SearchProducts(ctx, "PC", 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "P0001", rows[0].ID)
}

func TestRepositoryLatestPriceUsesGreatestEffectiveDate(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	dbtest.MustProduct(t, conn, "P1", "Widget", "pc")
	dbtest.MustProduct(t, conn, "P2", "Gadget", "pc")
	dbtest.MustProduct(t, conn, "P3", "Unpriced", "pc")
	dbtest.MustPrice(t, conn, "P1", "2023-01-01", "8.00")
	dbtest.MustPrice(t, conn, "P1", "2024-06-01", "10.00")
	dbtest.MustPrice(t, conn, "P1", "2024-02-01", "9.00")
	dbtest.MustPrice(t, conn, "P2", "2022-05-05", "3.25")

	latest, err := repo.LatestPrice(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.UnitPrice.Equal(decimal.RequireFromString("10.00")))

	missing, err := repo.LatestPrice(ctx, "P3")
	require.NoError(t, err)
	assert.Nil(t, missing)

	batch, err := repo.LatestPrices(ctx, []string{"P1", "P2", "P3"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "10.00", batch["P1"].UnitPrice.StringFixed(2))
	assert.Equal(t, "3.25", batch["P2"].UnitPrice.StringFixed(2))

	history, err := repo.PriceHistory(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2024-06-01", history[0].EffectiveDate.Format("2006-01-02"))
	assert.Equal(t, "2023-01-01", history[2].EffectiveDate.Format("2006-01-02"))
}

func TestRepositoryFindProductsByIDs(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		dbtest.MustProduct(t, conn, fmt.Sprintf("P%d", i), fmt.Sprintf("Item %d", i), "pc")
	}

	found, err := repo.FindProductsByIDs(ctx, []string{"P1", "P3", "P9"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Contains(t, found, "P1")
	assert.Contains(t, found, "P3")

	count, err := repo.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRepositoryUpsertProduct(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.UpsertProduct(ctx, &models.Product{ID: "P1", Description: dbtest.Ptr("Old")}))
	require.NoError(t, repo.UpsertProduct(ctx, &models.Product{ID: "P1", Description: dbtest.Ptr("New")}))

	row, err := repo.FindProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "New", *row.Description)
}
