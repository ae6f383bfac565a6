package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/salesledger/internal/analytics/types"
)

type fakeInserter struct {
	responses []error
	rows      []int
}

func (f *fakeInserter) InsertSalesEvents(_ context.Context, rows []cbigquery.ValueSaver) error {
	idx := len(f.rows)
	f.rows = append(f.rows, len(rows))
	if idx < len(f.responses) {
		return f.responses[idx]
	}
	return nil
}

func newTestWriter(t *testing.T, responses ...error) (*BigQueryWriter, *fakeInserter, *[]time.Duration) {
	t.Helper()
	fake := &fakeInserter{responses: responses}
	w, err := New(fake, RetryPolicy{MaxAttempts: 4, InitialBackoff: 10 * time.Millisecond, MaximumBackoff: 25 * time.Millisecond})
	require.NoError(t, err)
	var waits []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return w, fake, &waits
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, RetryPolicy{})
	require.Error(t, err)
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 5 * time.Second}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.MaximumBackoff, "maximum never drops below the initial backoff")
}

func TestInsertRetriesTransientErrors(t *testing.T) {
	w, fake, waits := newTestWriter(t,
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "down"),
		&googleapi.Error{Code: http.StatusTooManyRequests},
	)

	require.NoError(t, w.InsertSalesEvent(context.Background(), types.SalesEventRow{EventID: "evt-1"}))
	assert.Equal(t, []int{1, 1, 1, 1}, fake.rows)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, *waits)
}

func TestInsertStopsOnPermanentError(t *testing.T) {
	w, fake, waits := newTestWriter(t, status.Error(codes.InvalidArgument, "bad row"))

	err := w.InsertSalesEvent(context.Background(), types.SalesEventRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evt-1")
	assert.Len(t, fake.rows, 1)
	assert.Empty(t, *waits)
}

func TestInsertGivesUpAfterMaxAttempts(t *testing.T) {
	unavailable := &googleapi.Error{Code: http.StatusBadGateway}
	w, fake, _ := newTestWriter(t, unavailable, unavailable, unavailable, unavailable, unavailable)

	err := w.InsertSalesEvent(context.Background(), types.SalesEventRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Len(t, fake.rows, 4)
	var apiErr *googleapi.Error
	assert.ErrorAs(t, err, &apiErr)
}

func TestInsertHonorsCanceledContext(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}}}
	w, err := New(fake, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = w.InsertSalesEvent(ctx, types.SalesEventRow{EventID: "evt-1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fake.rows, 1)
}

func TestRetryable(t *testing.T) {
	rowErrors := func(reasons ...string) error {
		var multi cbigquery.MultiError
		for _, reason := range reasons {
			multi = append(multi, &cbigquery.Error{Reason: reason})
		}
		return cbigquery.PutMultiError{{InsertID: "evt-1", Errors: multi}}
	}

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"http 429", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"http 400", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"row backend error", rowErrors("backendError"), true},
		{"row mixed", rowErrors("timeout", "invalid"), false},
		{"empty put error", cbigquery.PutMultiError{}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"total": "30.00"})
	require.NoError(t, err)
	assert.True(t, nj.Valid)
	assert.JSONEq(t, `{"total":"30.00"}`, nj.JSONVal)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	nj, err = EncodeJSON(json.RawMessage(nil))
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	raw := json.RawMessage(`{"orderId":"TR0001"}`)
	nj, err = EncodeJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), nj.JSONVal)
}
