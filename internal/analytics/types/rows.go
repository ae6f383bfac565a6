package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SalesEventRow mirrors the sales_events BigQuery schema. Total is a NUMERIC
// decimal string so money never passes through floats.
type SalesEventRow struct {
	EventID    string
	EventType  string
	OccurredAt time.Time
	OrderID    string
	ActorID    *string
	OrderDate  *string
	CustomerID *string
	EmployeeID *string
	LineCount  *int64
	Quantity   *int64
	Total      *string
	Payload    cbigquery.NullJSON
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert id
// so redelivered events are deduplicated by the streaming API.
func (r SalesEventRow) Save() (map[string]cbigquery.Value, string, error) {
	row := map[string]cbigquery.Value{
		"event_id":    r.EventID,
		"event_type":  r.EventType,
		"occurred_at": r.OccurredAt,
		"order_id":    r.OrderID,
		"actor_id":    nullable(r.ActorID),
		"order_date":  nullable(r.OrderDate),
		"customer_id": nullable(r.CustomerID),
		"employee_id": nullable(r.EmployeeID),
		"line_count":  nullableInt(r.LineCount),
		"quantity":    nullableInt(r.Quantity),
		"total":       nullable(r.Total),
	}
	if r.Payload.Valid {
		row["payload"] = r.Payload.JSONVal
	} else {
		row["payload"] = nil
	}
	return row, r.EventID, nil
}

func nullable(v *string) cbigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int64) cbigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}
