package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
		category  Category
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true, category: CategoryValidation},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required", category: CategoryAuthorization},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "permission denied", detailsOK: true, category: CategoryAuthorization},
		{code: CodeAccessRevoked, status: http.StatusForbidden, publicMsg: "access revoked", category: CategoryAuthorization},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", category: CategoryNotFound},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", category: CategoryValidation},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true, category: CategoryTransient},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", category: CategoryInternal},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true, category: CategoryTransient},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.Category != tt.category {
			t.Fatalf("code %s expected category %s got %s", tt.code, tt.category, meta.Category)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "insert order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("dependency errors should be retryable")
	}
}

func TestStepIsReportedInMessage(t *testing.T) {
	err := New(CodeDependency, "write failed").WithStep("insert_line_items")
	if err.Step() != "insert_line_items" {
		t.Fatalf("unexpected step %q", err.Step())
	}
	if err.Error() != "DEPENDENCY_ERROR: write failed (step insert_line_items)" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestCodeHelpersSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeAccessRevoked, "blocked"))

	if CodeOf(err) != CodeAccessRevoked {
		t.Fatalf("expected access revoked, got %s", CodeOf(err))
	}
	if !Is(err, CodeAccessRevoked) {
		t.Fatalf("Is should match wrapped code")
	}
	if CategoryOf(err) != CategoryAuthorization {
		t.Fatalf("expected authorization category")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors default to internal")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
