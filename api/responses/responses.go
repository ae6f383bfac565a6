package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

const encodeFailureBody = `{"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}`

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError maps err onto its HTTP status and the public error envelope.
// Untyped errors are reported as internal errors without their message.
// Server-side failures are logged at error level, rejections at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	status, body := publicError(err)
	if logg != nil {
		if status >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(logg.WithFields(ctx, pkgerrors.LogFields(err)), "request.rejected")
		}
	}
	writeJSON(w, status, ErrorEnvelope{Error: body})
}

func publicError(err error) (int, APIError) {
	typed := pkgerrors.As(err)
	if typed == nil {
		if err == nil {
			err = errors.New("unknown error")
		}
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	out := APIError{Code: string(typed.Code()), Message: meta.PublicMessage, Step: typed.Step()}
	if exposesMessage(typed.Code(), meta.Category) && typed.Message() != "" {
		out.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return meta.HTTPStatus, out
}

// exposesMessage reports whether the caller-facing message of a code is safe
// to return verbatim.
func exposesMessage(code pkgerrors.Code, category pkgerrors.Category) bool {
	switch category {
	case pkgerrors.CategoryValidation, pkgerrors.CategoryAuthorization, pkgerrors.CategoryNotFound:
		return true
	}
	return code == pkgerrors.CodeRateLimit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status, body = http.StatusInternalServerError, []byte(encodeFailureBody)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
