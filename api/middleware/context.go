package middleware

import (
	"context"

	"github.com/angelmondragon/salesledger/internal/access"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxAccessID  contextKey = "access_id"
)

// PrincipalFromContext returns the principal resolved by Auth for this request.
func PrincipalFromContext(ctx context.Context) (access.Principal, bool) {
	if ctx == nil {
		return access.Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(access.Principal)
	return p, ok
}

// AccessIDFromContext returns the access token id, which keys the refresh session.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}

func WithAccessID(ctx context.Context, accessID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAccessID, accessID)
}
