package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/api/responses"
	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

// RequireAdmin admits only principals whose freshly loaded role is admin.
// It must run after Auth.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal missing"))
				return
			}
			if !principal.IsAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type orderAuthorizer interface {
	Authorize(ctx context.Context, principalID uuid.UUID, action enums.OrderAction) (*access.Principal, error)
}

// RequireOrderAction refuses a principal that lacks the feature permission
// for action before the body is read. The mutator checks again inside the
// write. It must run after Auth.
func RequireOrderAction(authz orderAuthorizer, action enums.OrderAction, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal missing"))
				return
			}
			if _, err := authz.Authorize(r.Context(), principal.ID, action); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
