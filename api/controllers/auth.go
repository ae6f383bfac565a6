package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/salesledger/api/middleware"
	"github.com/angelmondragon/salesledger/api/responses"
	"github.com/angelmondragon/salesledger/api/validators"
	"github.com/angelmondragon/salesledger/internal/auth"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

// decodeCall decodes a Req body, passes it to call and writes the result
// with status.
func decodeCall[Req, Res any](logg *logger.Logger, status int, call func(context.Context, Req) (Res, error)) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		var body Req
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return err
		}
		res, err := call(r.Context(), body)
		if err != nil {
			return err
		}
		responses.WriteSuccessStatus(w, status, res)
		return nil
	})
}

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return handle(logg, func(http.ResponseWriter, *http.Request) error { return unavailable("auth") })
	}
	return decodeCall(logg, http.StatusOK, svc.SignIn)
}

func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return handle(logg, func(http.ResponseWriter, *http.Request) error { return unavailable("auth") })
	}
	return decodeCall(logg, http.StatusOK, svc.Refresh)
}

// AuthLogout revokes the session of the calling access token. It must run
// behind the Auth middleware.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		if svc == nil {
			return unavailable("auth")
		}
		accessID := middleware.AccessIDFromContext(r.Context())
		if accessID == "" {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "session missing")
		}
		if err := svc.SignOut(r.Context(), accessID); err != nil {
			return err
		}
		responses.WriteNoContent(w)
		return nil
	})
}

func AuthRegister(svc auth.RegisterService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return handle(logg, func(http.ResponseWriter, *http.Request) error { return unavailable("register") })
	}
	return decodeCall(logg, http.StatusCreated, svc.Register)
}

// Me returns the principal as loaded by Auth for this request.
func Me(logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(w http.ResponseWriter, r *http.Request) error {
		principal, err := principalFrom(r)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, principal)
		return nil
	})
}
