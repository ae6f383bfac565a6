package enums

import (
	"fmt"
	"strings"
)

// OrderSortColumn whitelists the columns order listings may sort by.
type OrderSortColumn string

const (
	OrderSortID         OrderSortColumn = "id"
	OrderSortDate       OrderSortColumn = "date"
	OrderSortCustomerID OrderSortColumn = "customer_id"
	OrderSortEmployeeID OrderSortColumn = "employee_id"
)

var validOrderSortColumns = []OrderSortColumn{
	OrderSortID,
	OrderSortDate,
	OrderSortCustomerID,
	OrderSortEmployeeID,
}

func (c OrderSortColumn) String() string {
	return string(c)
}

func (c OrderSortColumn) IsValid() bool {
	for _, candidate := range validOrderSortColumns {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseOrderSortColumn maps raw input to a column; empty input yields date.
func ParseOrderSortColumn(value string) (OrderSortColumn, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return OrderSortDate, nil
	}
	for _, candidate := range validOrderSortColumns {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sort column %q", value)
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

// ParseSortDirection maps raw input to a direction; empty input yields desc.
func ParseSortDirection(value string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return SortDesc, nil
	case string(SortAsc):
		return SortAsc, nil
	case string(SortDesc):
		return SortDesc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q", value)
}

// OrderAction is a privileged order operation gated by feature permissions.
type OrderAction string

const (
	OrderActionCreate OrderAction = "create"
	OrderActionEdit   OrderAction = "edit"
	OrderActionDelete OrderAction = "delete"
)

func (a OrderAction) String() string {
	return string(a)
}

func (a OrderAction) IsValid() bool {
	switch a {
	case OrderActionCreate, OrderActionEdit, OrderActionDelete:
		return true
	}
	return false
}
