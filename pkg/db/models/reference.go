package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is read-only reference data.
type Customer struct {
	ID          string  `gorm:"column:id;primaryKey"`
	Name        string  `gorm:"column:name;not null"`
	Address     *string `gorm:"column:address"`
	PaymentTerm *string `gorm:"column:payment_term"`
}

// Employee is read-only reference data.
type Employee struct {
	ID             string     `gorm:"column:id;primaryKey"`
	FirstName      string     `gorm:"column:first_name;not null"`
	LastName       string     `gorm:"column:last_name;not null"`
	BirthDate      *time.Time `gorm:"column:birth_date;type:date"`
	Gender         *string    `gorm:"column:gender"`
	HireDate       *time.Time `gorm:"column:hire_date;type:date"`
	SeparationDate *time.Time `gorm:"column:separation_date;type:date"`
}

func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// Product is read-only reference data.
type Product struct {
	ID          string  `gorm:"column:id;primaryKey"`
	Description *string `gorm:"column:description"`
	Unit        *string `gorm:"column:unit"`
}

// PriceRecord is an append-only dated unit price for a product.
type PriceRecord struct {
	ProductID     string          `gorm:"column:product_id;primaryKey"`
	EffectiveDate time.Time       `gorm:"column:effective_date;type:date;primaryKey"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
