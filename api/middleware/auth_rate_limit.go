package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/salesledger/api/responses"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

// credentialBodyLimit caps how much of a login or register body is buffered
// to find the email.
const credentialBodyLimit = 16 << 10

type rateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// AuthRateLimitPolicy throttles one credential endpoint per client IP and per
// submitted email inside a fixed window. A zero limit disables that bucket.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// bucket is one counter checked for a request.
type bucket struct {
	kind  string
	value string
	limit int
}

func (p AuthRateLimitPolicy) buckets(ip, email string) []bucket {
	var out []bucket
	if p.ipLimit > 0 && ip != "" {
		out = append(out, bucket{kind: "ip", value: ip, limit: p.ipLimit})
	}
	if p.emailLimit > 0 && email != "" {
		out = append(out, bucket{kind: "email", value: hashValue(email), limit: p.emailLimit})
	}
	return out
}

// AuthRateLimit rejects sign-in and registration attempts over the policy
// with 429 RATE_LIMIT_EXCEEDED and a Retry-After header. Counter failures
// surface as DEPENDENCY_ERROR.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var email string
			if policy.emailLimit > 0 {
				body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, credentialBodyLimit))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large or unreadable"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				email = extractEmail(body)
			}

			for _, b := range policy.buckets(clientIP(r), email) {
				key := store.RateLimitKey(policy.name + ":" + b.kind + ":" + b.value)
				count, err := store.IncrWithTTL(ctx, key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit counter"))
					return
				}
				if count > int64(b.limit) {
					rejectRateLimited(ctx, logg, w, policy, b, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, b bucket, count int64) {
	if logg != nil {
		fields := map[string]any{
			"policy":         policy.name,
			"bucket":         b.kind,
			"attempts":       count,
			"limit":          b.limit,
			"window_seconds": int(policy.window.Seconds()),
		}
		if b.kind == "ip" {
			fields["ip"] = b.value
		} else {
			fields["email_hash"] = b.value
		}
		logg.Warn(logg.WithFields(ctx, fields), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Seconds())))
	responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeRateLimit, "too many %s attempts, try again later", policy.name))
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		first, _, _ := strings.Cut(header, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
