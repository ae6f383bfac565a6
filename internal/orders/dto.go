package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/salesledger/pkg/dates"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
)

// ListQuery is the raw listing request; Sort and Direction are parsed
// against the whitelist.
type ListQuery struct {
	Query     string
	Sort      string
	Direction string
}

// ListFilter is a validated ListQuery.
type ListFilter struct {
	Query     string
	Sort      enums.OrderSortColumn
	Direction enums.SortDirection
	Limit     int
}

// HeaderInput is the editable part of an order. ID is honored only on create;
// when blank an id is generated.
type HeaderInput struct {
	ID         string  `json:"id,omitempty" validate:"omitempty,max=8"`
	Date       string  `json:"date" validate:"required"`
	CustomerID *string `json:"customer_id,omitempty"`
	EmployeeID *string `json:"employee_id,omitempty"`
}

// Header is a validated HeaderInput.
type Header struct {
	Date       time.Time
	CustomerID *string
	EmployeeID *string
}

type LineInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type CreateOrderInput struct {
	Header HeaderInput `json:"header" validate:"required"`
	Lines  []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type OrderSummary struct {
	ID         string  `json:"id"`
	Date       string  `json:"date"`
	CustomerID *string `json:"customer_id"`
	EmployeeID *string `json:"employee_id"`
}

func SummaryFromModel(m models.Order) OrderSummary {
	return OrderSummary{
		ID:         m.ID,
		Date:       dates.Format(m.OrderDate),
		CustomerID: m.CustomerID,
		EmployeeID: m.EmployeeID,
	}
}

// LineItemView is one display row of an order. UnitPrice is the current
// price; ChargedUnitPrice is the price stored when the line was written.
// Customer and employee names repeat on every row for display only.
type LineItemView struct {
	OrderID            string           `json:"order_id"`
	ProductID          string           `json:"product_id"`
	Quantity           int              `json:"quantity"`
	ProductDescription string           `json:"product_description"`
	ProductUnit        string           `json:"product_unit"`
	UnitPrice          *decimal.Decimal `json:"unit_price"`
	ChargedUnitPrice   *decimal.Decimal `json:"charged_unit_price"`
	LineTotal          decimal.Decimal  `json:"line_total"`
	CustomerName       string           `json:"customer_name"`
	EmployeeName       string           `json:"employee_name"`
	OrderDate          string           `json:"order_date"`
}

type OrderDetail struct {
	Order        OrderSummary    `json:"order"`
	CustomerName string          `json:"customer_name"`
	EmployeeName string          `json:"employee_name"`
	Rows         []LineItemView  `json:"rows"`
	Total        decimal.Decimal `json:"total"`
	ChargedTotal decimal.Decimal `json:"charged_total"`
}
