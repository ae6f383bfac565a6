// Package payloads defines the data carried by each outbox event. Fields
// carry validate tags that the publisher registry checks before sending.
package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderLine is a single product line carried on order events. ChargedUnitPrice
// is a decimal string so consumers never round-trip money through floats.
type OrderLine struct {
	ProductID        string `json:"productId" validate:"required"`
	Quantity         int    `json:"quantity" validate:"gte=0"`
	ChargedUnitPrice string `json:"chargedUnitPrice,omitempty"`
}

// OrderCreatedEvent is emitted once the header and every line are committed.
type OrderCreatedEvent struct {
	OrderID    string      `json:"orderId" validate:"required"`
	OrderDate  string      `json:"orderDate"`
	CustomerID *string     `json:"customerId,omitempty"`
	EmployeeID *string     `json:"employeeId,omitempty"`
	Lines      []OrderLine `json:"lines" validate:"dive"`
	Total      string      `json:"total"`
}

// OrderHeaderUpdatedEvent carries the header after an edit.
type OrderHeaderUpdatedEvent struct {
	OrderID    string  `json:"orderId" validate:"required"`
	OrderDate  string  `json:"orderDate"`
	CustomerID *string `json:"customerId,omitempty"`
	EmployeeID *string `json:"employeeId,omitempty"`
}

// OrderLinesReplacedEvent carries the full line set after a replace.
type OrderLinesReplacedEvent struct {
	OrderID string      `json:"orderId" validate:"required"`
	Lines   []OrderLine `json:"lines" validate:"dive"`
	Total   string      `json:"total"`
}

// OrderLineChangedEvent covers single line updates and deletions.
type OrderLineChangedEvent struct {
	OrderID string    `json:"orderId" validate:"required"`
	Line    OrderLine `json:"line"`
}

type OrderDeletedEvent struct {
	OrderID   string    `json:"orderId" validate:"required"`
	DeletedAt time.Time `json:"deletedAt"`
}

type PrincipalRoleChangedEvent struct {
	PrincipalID  uuid.UUID `json:"principalId" validate:"required"`
	PreviousRole string    `json:"previousRole"`
	Role         string    `json:"role" validate:"required"`
}

type PrincipalPermissionsChangedEvent struct {
	PrincipalID uuid.UUID `json:"principalId" validate:"required"`
	CanCreate   bool      `json:"canCreate"`
	CanEdit     bool      `json:"canEdit"`
	CanDelete   bool      `json:"canDelete"`
}
