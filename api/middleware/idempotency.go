package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/salesledger/api/responses"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	RegisterIdempotencyTTL    = 24 * time.Hour
	OrderCreateIdempotencyTTL = 7 * 24 * time.Hour

	// claimTTL bounds how long an in-flight claim blocks duplicates if the
	// handler never completes.
	claimTTL             = time.Minute
	maxIdempotencyKeyLen = 128
)

type idempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// idempotencyRecord is either an in-flight claim or a completed response.
type idempotencyRecord struct {
	Fingerprint string `json:"fingerprint"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes a create route safe to retry. The first request carrying
// an Idempotency-Key claims it; duplicates arriving while it runs get 409,
// later duplicates with the same body get the stored response for ttl, and a
// different body under the same key is a CONFLICT. 5xx responses release the
// key. Requests without the header, a nil store or a zero ttl pass through.
func Idempotency(ttl time.Duration, store idempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || ttl <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(token) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be at most %d characters", IdempotencyHeader, maxIdempotencyKeyLen))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(idempotencyScope(r), token)
			fingerprint := fingerprintBody(body)

			claim, _ := json.Marshal(idempotencyRecord{Fingerprint: fingerprint, Pending: true})
			claimed, err := store.SetNX(ctx, key, string(claim), claimTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayStored(ctx, w, store, key, fingerprint, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			storeOutcome(ctx, store, key, fingerprint, capture, ttl, logg)
		})
	}
}

func replayStored(ctx context.Context, w http.ResponseWriter, store idempotencyStore, key, fingerprint string, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// The claim expired between SetNX and Get; the first request is still
		// the owner as far as the caller can tell.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.Fingerprint != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key reused with different request body"))
		return
	}
	if record.Pending {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

func storeOutcome(ctx context.Context, store idempotencyStore, key, fingerprint string, capture *responseCapture, ttl time.Duration, logg *logger.Logger) {
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		if err := store.Del(ctx, key); err != nil && logg != nil {
			logg.Error(ctx, "release idempotency key", err)
		}
		return
	}

	payload, err := json.Marshal(idempotencyRecord{
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
	if err == nil {
		err = store.Set(ctx, key, string(payload), ttl)
	}
	if err != nil && logg != nil {
		logg.Error(ctx, "persist idempotency record", err)
	}
}

// idempotencyScope isolates keys per caller and route. Anonymous routes such
// as registration share one scope.
func idempotencyScope(r *http.Request) string {
	caller := "anonymous"
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		caller = principal.ID.String()
	}
	return caller + "|" + r.Method + "|" + strings.TrimSuffix(r.URL.Path, "/")
}

func fingerprintBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
