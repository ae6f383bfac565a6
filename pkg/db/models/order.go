package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a sales transaction header.
type Order struct {
	ID         string     `gorm:"column:id;primaryKey"`
	OrderDate  time.Time  `gorm:"column:order_date;type:date;not null"`
	CustomerID *string    `gorm:"column:customer_id"`
	EmployeeID *string    `gorm:"column:employee_id"`
	CreatedBy  *uuid.UUID `gorm:"column:created_by;type:uuid"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLineItem is keyed by (order_id, product_id). ChargedUnitPrice is the
// price resolved when the line was written.
type OrderLineItem struct {
	OrderID          string              `gorm:"column:order_id;primaryKey"`
	ProductID        string              `gorm:"column:product_id;primaryKey"`
	Quantity         int                 `gorm:"column:quantity;not null"`
	ChargedUnitPrice decimal.NullDecimal `gorm:"column:charged_unit_price;type:numeric(10,2)"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
}
