package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregatePrincipal OutboxAggregateType = "principal"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePrincipal,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType identifies the payload schema of an outbox event.
type OutboxEventType string

const (
	EventOrderCreated                OutboxEventType = "order_created"
	EventOrderHeaderUpdated          OutboxEventType = "order_header_updated"
	EventOrderLinesReplaced          OutboxEventType = "order_lines_replaced"
	EventOrderLineUpdated            OutboxEventType = "order_line_updated"
	EventOrderLineDeleted            OutboxEventType = "order_line_deleted"
	EventOrderDeleted                OutboxEventType = "order_deleted"
	EventPrincipalRoleChanged        OutboxEventType = "principal_role_changed"
	EventPrincipalPermissionsChanged OutboxEventType = "principal_permissions_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderHeaderUpdated,
	EventOrderLinesReplaced,
	EventOrderLineUpdated,
	EventOrderLineDeleted,
	EventOrderDeleted,
	EventPrincipalRoleChanged,
	EventPrincipalPermissionsChanged,
}

func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
