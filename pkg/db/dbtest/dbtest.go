// Package dbtest opens in-memory SQLite databases carrying the application
// schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

// schema mirrors pkg/migrate/migrations in SQLite dialect.
var schema = []string{
	`CREATE TABLE customers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  address TEXT,
  payment_term TEXT
);`,
	`CREATE TABLE employees (
  id TEXT PRIMARY KEY,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  birth_date DATE,
  gender TEXT,
  hire_date DATE,
  separation_date DATE
);`,
	`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  description TEXT,
  unit TEXT
);`,
	`CREATE TABLE price_records (
  product_id TEXT NOT NULL REFERENCES products(id),
  effective_date DATE NOT NULL,
  unit_price NUMERIC NOT NULL,
  created_at DATETIME,
  PRIMARY KEY (product_id, effective_date)
);`,
	`CREATE TABLE orders (
  id TEXT NOT NULL,
  order_date DATE NOT NULL,
  customer_id TEXT REFERENCES customers(id),
  employee_id TEXT REFERENCES employees(id),
  created_by TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT orders_pkey PRIMARY KEY (id)
);`,
	`CREATE TABLE order_line_items (
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL REFERENCES products(id),
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  charged_unit_price NUMERIC,
  created_at DATETIME,
  PRIMARY KEY (order_id, product_id)
);`,
	`CREATE TABLE principals (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  last_sign_in_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE feature_permissions (
  principal_id TEXT PRIMARY KEY REFERENCES principals(id) ON DELETE CASCADE,
  can_create INTEGER NOT NULL DEFAULT 1,
  can_edit INTEGER NOT NULL DEFAULT 1,
  can_delete INTEGER NOT NULL DEFAULT 1,
  updated_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME
);`,
}

// Open returns a private in-memory database with the schema applied.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_foreign_keys=on", name, uuid.NewString()[:8])
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// one connection keeps the shared-cache database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func Date(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return parsed
}

func Ptr[T any](v T) *T {
	return &v
}

func MustCustomer(t *testing.T, conn *gorm.DB, id, name, address string) models.Customer {
	t.Helper()
	row := models.Customer{ID: id, Name: name, Address: Ptr(address), PaymentTerm: Ptr("30D")}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func MustEmployee(t *testing.T, conn *gorm.DB, id, first, last string) models.Employee {
	t.Helper()
	row := models.Employee{ID: id, FirstName: first, LastName: last, Gender: Ptr("F")}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func MustProduct(t *testing.T, conn *gorm.DB, id, description, unit string) models.Product {
	t.Helper()
	row := models.Product{ID: id, Unit: Ptr(unit)}
	if description != "" {
		row.Description = Ptr(description)
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func MustPrice(t *testing.T, conn *gorm.DB, productID, effective, price string) models.PriceRecord {
	t.Helper()
	row := models.PriceRecord{
		ProductID:     productID,
		EffectiveDate: Date(t, effective),
		UnitPrice:     decimal.RequireFromString(price),
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func MustPrincipal(t *testing.T, conn *gorm.DB, email string, role enums.Role) models.Principal {
	t.Helper()
	row := models.Principal{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  strings.Split(email, "@")[0],
		PasswordHash: "hash",
		Role:         role,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func MustPermissions(t *testing.T, conn *gorm.DB, principalID uuid.UUID, create, edit, del bool) models.FeaturePermissions {
	t.Helper()
	row := models.FeaturePermissions{PrincipalID: principalID, CanCreate: create, CanEdit: edit, CanDelete: del}
	require.NoError(t, conn.Create(&row).Error)
	return row
}
