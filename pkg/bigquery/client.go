package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// SalesEventsSchema is the column set the analytics writer streams. The table
// is day-partitioned on occurred_at when this service creates it.
var SalesEventsSchema = bigquery.Schema{
	{Name: "event_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "order_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "actor_id", Type: bigquery.StringFieldType},
	{Name: "order_date", Type: bigquery.StringFieldType},
	{Name: "customer_id", Type: bigquery.StringFieldType},
	{Name: "employee_id", Type: bigquery.StringFieldType},
	{Name: "line_count", Type: bigquery.IntegerFieldType},
	{Name: "quantity", Type: bigquery.IntegerFieldType},
	{Name: "total", Type: bigquery.NumericFieldType},
	{Name: "payload", Type: bigquery.JSONFieldType},
}

// Client streams order analytics rows into one table.
type Client struct {
	client *bigquery.Client
	table  *bigquery.Table
}

type Pinger interface {
	Ping(context.Context) error
}

// NewClient opens a BigQuery client and checks that the sales events table
// exists with every column in SalesEventsSchema. With cfg.CreateTables a
// missing table is created instead.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	tableID := strings.TrimSpace(cfg.SalesEventsTable)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case tableID == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	c := &Client{client: bq, table: bq.Dataset(datasetID).Table(tableID)}

	created, err := c.prepare(ctx, cfg.CreateTables)
	if err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": datasetID,
			"table":   tableID,
			"created": created,
		}), "bigquery client initialized")
	}
	return c, nil
}

// prepare verifies the table, creating it when allowed. It reports whether
// the table was created.
func (c *Client) prepare(ctx context.Context, create bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	meta, err := c.table.Metadata(ctx)
	switch {
	case err == nil:
		return false, checkSchema(c.table.TableID, meta.Schema)
	case !isNotFound(err):
		return false, fmt.Errorf("read table %q: %w", c.table.TableID, err)
	case !create:
		return false, fmt.Errorf("table %s.%s does not exist", c.table.DatasetID, c.table.TableID)
	}

	err = c.table.Create(ctx, &bigquery.TableMetadata{
		Schema:           SalesEventsSchema,
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: "occurred_at"},
		Clustering:       &bigquery.Clustering{Fields: []string{"event_type", "order_id"}},
	})
	if err != nil {
		return false, fmt.Errorf("create table %q: %w", c.table.TableID, err)
	}
	return true, nil
}

// checkSchema reports every SalesEventsSchema column that is missing from
// have or has a different type. Extra columns are allowed.
func checkSchema(table string, have bigquery.Schema) error {
	types := make(map[string]bigquery.FieldType, len(have))
	for _, f := range have {
		types[f.Name] = f.Type
	}
	var problems []string
	for _, want := range SalesEventsSchema {
		got, ok := types[want.Name]
		switch {
		case !ok:
			problems = append(problems, want.Name+" missing")
		case got != want.Type:
			problems = append(problems, fmt.Sprintf("%s is %s, want %s", want.Name, got, want.Type))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("table %q schema mismatch: %s", table, strings.Join(problems, "; "))
	}
	return nil
}

// Ping checks the table is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.table == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	_, err := c.table.Metadata(ctx)
	return err
}

// InsertSalesEvents streams rows into the sales events table. Rows should
// implement bigquery.ValueSaver so InsertID deduplicates retries.
func (c *Client) InsertSalesEvents(ctx context.Context, rows []bigquery.ValueSaver) error {
	if c == nil || c.table == nil {
		return errClientNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	return c.table.Inserter().Put(ctx, rows)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
