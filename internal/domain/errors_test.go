package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "Resource not found",
			},
			want: "[NOT_FOUND] Resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "Resource not found",
				Cause:   errors.New("id: 123"),
			},
			want: "[NOT_FOUND] Resource not found: id: 123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("inner error")
	err := &AppError{
		Code:    "TEST",
		Message: "outer error",
		Cause:   inner,
	}

	if !errors.Is(err, inner) {
		t.Error("AppError.Unwrap() should allow errors.Is to find inner error")
	}
}

func TestAppError_Is(t *testing.T) {
	err := ErrNotFound("resume", "abc")

	if !errors.Is(err, ErrNotFoundSentinel) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, ErrMalformedFieldSentinel) {
		t.Error("errors.Is should not match a different code")
	}

	wrapped := fmt.Errorf("loading: %w", ErrMalformedFieldID("x-undefined"))
	if !errors.Is(wrapped, ErrMalformedFieldSentinel) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestNewError(t *testing.T) {
	err := NewError("DB_ERROR", "Database error", http.StatusInternalServerError)

	if err.Code != "DB_ERROR" {
		t.Errorf("Code = %s, want DB_ERROR", err.Code)
	}
	if err.Message != "Database error" {
		t.Errorf("Message = %s, want Database error", err.Message)
	}
	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}
	if err.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestAppError_WithMethods(t *testing.T) {
	err := NewError("TEST", "Test error", http.StatusBadRequest).
		WithDetails("Additional details").
		WithMetadata("key", "value").
		WithRetry(5 * time.Second)

	if err.Details != "Additional details" {
		t.Errorf("Details = %s, want 'Additional details'", err.Details)
	}
	if err.Metadata["key"] != "value" {
		t.Errorf("Metadata[key] = %v, want 'value'", err.Metadata["key"])
	}
	if !err.Retryable || err.RetryAfter != 5*time.Second {
		t.Errorf("Retry = (%v, %v), want (true, 5s)", err.Retryable, err.RetryAfter)
	}
}

func TestAppError_ToJSON(t *testing.T) {
	err := ErrValidationField("url", "url is required")

	var decoded map[string]any
	if jsonErr := json.Unmarshal(err.ToJSON(), &decoded); jsonErr != nil {
		t.Fatalf("ToJSON produced invalid JSON: %v", jsonErr)
	}
	if decoded["code"] != ErrCodeValidation {
		t.Errorf("code = %v, want %s", decoded["code"], ErrCodeValidation)
	}
	if _, ok := decoded["HTTPStatus"]; ok {
		t.Error("HTTPStatus should not be serialized")
	}
}

func TestScanErrors(t *testing.T) {
	cause := errors.New("nil node")

	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"adapter failure", ErrAdapterFailure("workable", "button missing"), ErrCodeAdapterFailure, http.StatusUnprocessableEntity},
		{"container assembly", ErrContainerAssembly("form-0", 3, cause), ErrCodeContainerAssembly, http.StatusUnprocessableEntity},
		{"malformed field", ErrMalformedFieldID("a-undefined"), ErrCodeMalformedFieldID, http.StatusUnprocessableEntity},
		{"scan failed", ErrScanFailed("reading document", cause), ErrCodeScanFailed, http.StatusUnprocessableEntity},
		{"tailor failed", ErrTailorFailed(cause), ErrCodeTailorFailed, http.StatusInternalServerError},
		{"resume not found", ErrResumeNotFound("r1"), ErrCodeNotFound, http.StatusNotFound},
		{"rate limited", ErrRateLimited(time.Minute), ErrCodeRateLimited, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.status)
			}
		})
	}
}

func TestErrContainerAssembly_Metadata(t *testing.T) {
	cause := errors.New("nil node")
	err := ErrContainerAssembly("form-2", 7, cause)

	if err.Metadata["form_id"] != "form-2" {
		t.Errorf("Metadata[form_id] = %v, want form-2", err.Metadata["form_id"])
	}
	if err.Metadata["field_index"] != 7 {
		t.Errorf("Metadata[field_index] = %v, want 7", err.Metadata["field_index"])
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through errors.Is")
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", ErrNotFound("scan", "1"), http.StatusNotFound},
		{"wrapped app error", fmt.Errorf("ctx: %w", ErrValidation("bad")), http.StatusBadRequest},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(ErrDatabase(errors.New("conn refused"))); got != ErrCodeDatabase {
		t.Errorf("GetErrorCode() = %s, want %s", got, ErrCodeDatabase)
	}
	if got := GetErrorCode(errors.New("boom")); got != ErrCodeInternal {
		t.Errorf("GetErrorCode() = %s, want %s", got, ErrCodeInternal)
	}
}

func TestWrapError(t *testing.T) {
	inner := errors.New("dial tcp")
	err := WrapError(inner, ErrCodeExternalAPI, "upstream failed", http.StatusBadGateway)

	if !IsAppError(err) {
		t.Error("WrapError should return an AppError")
	}
	if !errors.Is(err, inner) {
		t.Error("WrapError should keep the cause")
	}
	if appErr, ok := AsAppError(fmt.Errorf("x: %w", err)); !ok || appErr.HTTPStatus != http.StatusBadGateway {
		t.Errorf("AsAppError() = %v, %v", appErr, ok)
	}
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		want string
	}{
		{
			name: "error without wrapped error",
			err: &DomainError{
				Code:    ErrCodeNotFound,
				Message: "Resource not found",
			},
			want: "[NOT_FOUND] Resource not found",
		},
		{
			name: "error with wrapped error",
			err: &DomainError{
				Code:    ErrCodeNotFound,
				Message: "Resource not found",
				Err:     errors.New("id: 123"),
			},
			want: "[NOT_FOUND] Resource not found: id: 123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("DomainError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("resume", "123")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %s, want %s", err.Code, ErrCodeNotFound)
	}
	if err.Details["resource"] != "resume" {
		t.Errorf("Details[resource] = %v, want 'resume'", err.Details["resource"])
	}
	if !errors.Is(err, ErrNotFoundVal) {
		t.Error("NotFoundError should match ErrNotFoundVal")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("html", "html is required")

	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %s, want %s", err.Code, ErrCodeValidation)
	}
	if err.Details["field"] != "html" {
		t.Errorf("Details[field] = %v, want 'html'", err.Details["field"])
	}
	if !errors.Is(err, ErrInvalidInputVal) {
		t.Error("ValidationError should match ErrInvalidInputVal")
	}
}
