package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeMissingTenant, "test message", http.StatusBadRequest),
			want: "[TENANT_MISSING] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_INTERNAL] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeInvalidRecord, "test", http.StatusBadRequest)
	err.WithDetails("field", "content").WithDetails("reason", "too short")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["field"] != "content" {
		t.Errorf("Details[field] = %v, want content", err.Details["field"])
	}

	if err.Details["reason"] != "too short" {
		t.Errorf("Details[reason] = %v, want too short", err.Details["reason"])
	}
}

func TestMissingTenant(t *testing.T) {
	err := MissingTenant()

	if err.Code != ErrCodeMissingTenant {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingTenant)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestTenantMismatch(t *testing.T) {
	err := TenantMismatch("mem-123")

	if err.Code != ErrCodeTenantMismatch {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTenantMismatch)
	}

	// Mismatches map to 404, never 403, so existence is never leaked.
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}

	if err.Details["record_id"] != "mem-123" {
		t.Errorf("Details[record_id] = %v, want mem-123", err.Details["record_id"])
	}
}

func TestNotAuthorized(t *testing.T) {
	err := NotAuthorized("delete")

	if err.Code != ErrCodeNotAuthorized {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotAuthorized)
	}

	if err.HTTPStatus != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusForbidden)
	}
}

func TestRestrictedContent(t *testing.T) {
	err := RestrictedContent("longterm")

	if err.Code != ErrCodeRestrictedContent {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRestrictedContent)
	}

	if err.HTTPStatus != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusForbidden)
	}

	if err.Details["layer"] != "longterm" {
		t.Errorf("Details[layer] = %v, want longterm", err.Details["layer"])
	}
}

func TestInfoClassViolation(t *testing.T) {
	err := InfoClassViolation("confidential")

	if err.Code != ErrCodeInfoClassViolation {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInfoClassViolation)
	}

	if err.HTTPStatus != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusForbidden)
	}
}

func TestSanitizationFailed(t *testing.T) {
	err := SanitizationFailed("would require quoting restricted evidence")

	if err.Code != ErrCodeSanitizationFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeSanitizationFailed)
	}
}

func TestBudgetExceeded(t *testing.T) {
	err := BudgetExceeded("tenant-a", 0.02, 0.01)

	if err.Code != ErrCodeBudgetExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeBudgetExceeded)
	}

	if err.HTTPStatus != http.StatusPaymentRequired {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusPaymentRequired)
	}

	if err.Details["estimated_usd"] != 0.02 {
		t.Errorf("Details[estimated_usd] = %v, want 0.02", err.Details["estimated_usd"])
	}
}

func TestBackendUnavailable(t *testing.T) {
	underlying := errors.New("connection refused")
	err := BackendUnavailable("postgres", underlying)

	if err.Code != ErrCodeBackendUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeBackendUnavailable)
	}

	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestRetrievalUnavailable(t *testing.T) {
	underlying := errors.New("all strategies failed")
	err := RetrievalUnavailable(underlying)

	if err.Code != ErrCodeRetrievalUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRetrievalUnavailable)
	}

	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}
}

func TestDeadlineExceeded(t *testing.T) {
	err := DeadlineExceeded("query_memory")

	if err.Code != ErrCodeDeadlineExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeDeadlineExceeded)
	}

	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}
}

func TestInvalidRecord(t *testing.T) {
	err := InvalidRecord("content is empty")

	if err.Code != ErrCodeInvalidRecord {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidRecord)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestUnknownModel(t *testing.T) {
	err := UnknownModel("heavy-embed-v9")

	if err.Code != ErrCodeUnknownModel {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnknownModel)
	}

	if err.Details["model"] != "heavy-embed-v9" {
		t.Errorf("Details[model] = %v, want heavy-embed-v9", err.Details["model"])
	}
}

func TestBadLayer(t *testing.T) {
	err := BadLayer("archived")

	if err.Code != ErrCodeBadLayer {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeBadLayer)
	}
}

func TestStaleEmbedding(t *testing.T) {
	err := StaleEmbedding("mem-1", "cheap-embed-v1")

	if err.Code != ErrCodeStaleEmbedding {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStaleEmbedding)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}
}

func TestOptimisticConcurrency(t *testing.T) {
	err := OptimisticConcurrency("mem-1")

	if err.Code != ErrCodeOptimisticConcurrency {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeOptimisticConcurrency)
	}
}

func TestTenantThrottled(t *testing.T) {
	err := TenantThrottled("tenant-a")

	if err.Code != ErrCodeTenantThrottled {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTenantThrottled)
	}

	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTooManyRequests)
	}
}

func TestProviderRateLimited(t *testing.T) {
	err := ProviderRateLimited("openai")

	if err.Code != ErrCodeProviderRateLimited {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeProviderRateLimited)
	}

	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTooManyRequests)
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("unexpected nil pointer")
	err := Internal("internal error", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "service error",
			err:  New(ErrCodeInternal, "test", http.StatusInternalServerError),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test", http.StatusInternalServerError)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{
			name: "service error",
			err:  serviceErr,
			want: serviceErr,
		},
		{
			name: "standard error",
			err:  standardErr,
			want: nil,
		},
		{
			name: "nil error",
			err:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "service error",
			err:  New(ErrCodeTenantMismatch, "test", http.StatusNotFound),
			want: http.StatusNotFound,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: http.StatusInternalServerError,
		},
		{
			name: "nil error",
			err:  nil,
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := BudgetExceeded("tenant-a", 0.02, 0.01)

	if !Is(err, ErrCodeBudgetExceeded) {
		t.Error("Is() = false, want true for matching code")
	}

	if Is(err, ErrCodeTenantMismatch) {
		t.Error("Is() = true, want false for non-matching code")
	}

	if Is(errors.New("plain"), ErrCodeBudgetExceeded) {
		t.Error("Is() = true, want false for non-ServiceError")
	}
}
