package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/salesledger/internal/analytics/types"
)

// RetryPolicy controls how often a failed streaming insert is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = 2 * time.Second
	}
	p.MaximumBackoff = max(p.MaximumBackoff, p.InitialBackoff)
	return p
}

// Inserter streams rows into the sales events table.
type Inserter interface {
	InsertSalesEvents(ctx context.Context, rows []cbigquery.ValueSaver) error
}

// BigQueryWriter streams one sales event row per call. Rows are written
// before the message is acked, so a crash never loses an acknowledged event.
type BigQueryWriter struct {
	client Inserter
	retry  RetryPolicy
	sleep  func(context.Context, time.Duration) error
}

func New(client Inserter, retry RetryPolicy) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return &BigQueryWriter{client: client, retry: retry.withDefaults(), sleep: sleepCtx}, nil
}

// InsertSalesEvent writes row, retrying transient BigQuery failures with
// capped exponential backoff. The row's InsertID is its event id, so BigQuery
// de-duplicates retried inserts.
func (w *BigQueryWriter) InsertSalesEvent(ctx context.Context, row types.SalesEventRow) error {
	rows := []cbigquery.ValueSaver{row}
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := w.client.InsertSalesEvents(ctx, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !Retryable(err) {
			return fmt.Errorf("insert sales event %s (attempt %d): %w", row.EventID, attempt, err)
		}
		if err := w.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

var retryableReasons = map[string]bool{
	"backendError":      true,
	"internalError":     true,
	"rateLimitExceeded": true,
	"timeout":           true,
}

// Retryable reports whether every failure inside err is transient.
func Retryable(err error) bool {
	leaves := leafErrors(err)
	if len(leaves) == 0 {
		return false
	}
	for _, leaf := range leaves {
		if !retryableLeaf(leaf) {
			return false
		}
	}
	return true
}

// leafErrors flattens BigQuery's aggregate insert errors into individual row
// and API errors.
func leafErrors(err error) []error {
	if err == nil {
		return nil
	}
	var put cbigquery.PutMultiError
	if errors.As(err, &put) {
		var out []error
		for i := range put {
			out = append(out, leafErrors(put[i].Errors)...)
		}
		return out
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		var out []error
		for _, inner := range multi {
			out = append(out, leafErrors(inner)...)
		}
		return out
	}
	return []error{err}
}

func retryableLeaf(err error) bool {
	var bqErr *cbigquery.Error
	if errors.As(err, &bqErr) {
		return retryableReasons[bqErr.Reason]
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EncodeJSON converts a payload into a BigQuery JSON column value. Empty
// payloads become NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
