// Package errors provides the unified error taxonomy for the memory engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique, namespaced error code.
type ErrorCode string

const (
	// Tenant / permission errors
	ErrCodeMissingTenant  ErrorCode = "TENANT_MISSING"
	ErrCodeTenantMismatch ErrorCode = "TENANT_MISMATCH"
	ErrCodeNotAuthorized  ErrorCode = "TENANT_NOT_AUTHORIZED"

	// Policy errors
	ErrCodeRestrictedContent  ErrorCode = "POLICY_RESTRICTED_CONTENT"
	ErrCodeInfoClassViolation ErrorCode = "POLICY_INFO_CLASS_VIOLATION"
	ErrCodeSanitizationFailed ErrorCode = "POLICY_SANITIZATION_FAILED"

	// Budget errors
	ErrCodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"

	// Availability errors
	ErrCodeBackendUnavailable   ErrorCode = "AVAIL_BACKEND_UNAVAILABLE"
	ErrCodeRetrievalUnavailable ErrorCode = "AVAIL_RETRIEVAL_UNAVAILABLE"
	ErrCodeDeadlineExceeded     ErrorCode = "AVAIL_DEADLINE_EXCEEDED"

	// Validation errors
	ErrCodeInvalidRecord ErrorCode = "VALID_INVALID_RECORD"
	ErrCodeUnknownModel  ErrorCode = "VALID_UNKNOWN_MODEL"
	ErrCodeBadLayer      ErrorCode = "VALID_BAD_LAYER"

	// Conflict errors
	ErrCodeStaleEmbedding        ErrorCode = "CONFLICT_STALE_EMBEDDING"
	ErrCodeOptimisticConcurrency ErrorCode = "CONFLICT_OPTIMISTIC_CONCURRENCY"

	// Throttling errors
	ErrCodeTenantThrottled    ErrorCode = "THROTTLE_TENANT_THROTTLED"
	ErrCodeProviderRateLimited ErrorCode = "THROTTLE_PROVIDER_RATE_LIMITED"

	// Generic internal error, used when no more specific code applies.
	ErrCodeInternal ErrorCode = "SVC_INTERNAL"
)

// ServiceError represents a structured error with a code, message, and the
// HTTP status the adapter layer should translate it to.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Tenant / permission errors

// MissingTenant is returned when an operation is invoked without a tenant context.
func MissingTenant() *ServiceError {
	return New(ErrCodeMissingTenant, "tenant context is required", http.StatusBadRequest)
}

// TenantMismatch is returned when the context tenant does not own the target record.
// Mapped to 404, not 403, so existence of another tenant's record is never leaked.
func TenantMismatch(recordID string) *ServiceError {
	return New(ErrCodeTenantMismatch, "record not found", http.StatusNotFound).
		WithDetails("record_id", recordID)
}

// NotAuthorized is returned when the caller's role set does not permit the operation.
func NotAuthorized(operation string) *ServiceError {
	return New(ErrCodeNotAuthorized, "not authorized", http.StatusForbidden).
		WithDetails("operation", operation)
}

// Policy errors

// RestrictedContent is returned when a write would persist restricted content
// outside the working layer.
func RestrictedContent(layer string) *ServiceError {
	return New(ErrCodeRestrictedContent, "restricted content may not be persisted outside the working layer", http.StatusForbidden).
		WithDetails("layer", layer)
}

// InfoClassViolation is returned when a caller requests content above their
// permitted information class, or a promotion would downgrade containment.
func InfoClassViolation(infoClass string) *ServiceError {
	return New(ErrCodeInfoClassViolation, "information class violation", http.StatusForbidden).
		WithDetails("info_class", infoClass)
}

// SanitizationFailed is returned when the policy guard cannot safely scrub content.
func SanitizationFailed(reason string) *ServiceError {
	return New(ErrCodeSanitizationFailed, "sanitization failed", http.StatusInternalServerError).
		WithDetails("reason", reason)
}

// Budget errors

// BudgetExceeded is returned when the cost guard denies admission for a priced call.
func BudgetExceeded(tenant string, estimated, limit float64) *ServiceError {
	return New(ErrCodeBudgetExceeded, "budget exceeded", http.StatusPaymentRequired).
		WithDetails("tenant", tenant).
		WithDetails("estimated_usd", estimated).
		WithDetails("limit_usd", limit)
}

// Availability errors

// BackendUnavailable is returned when a single backend is down; callers may degrade.
func BackendUnavailable(backend string, err error) *ServiceError {
	return Wrap(ErrCodeBackendUnavailable, "backend unavailable", http.StatusServiceUnavailable, err).
		WithDetails("backend", backend)
}

// RetrievalUnavailable is returned when every retrieval strategy has failed.
func RetrievalUnavailable(err error) *ServiceError {
	return Wrap(ErrCodeRetrievalUnavailable, "retrieval unavailable", http.StatusServiceUnavailable, err)
}

// DeadlineExceeded is returned when the request's deadline elapses before completion.
func DeadlineExceeded(operation string) *ServiceError {
	return New(ErrCodeDeadlineExceeded, "deadline exceeded", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Validation errors

// InvalidRecord is returned for malformed or out-of-bounds record drafts or queries.
func InvalidRecord(reason string) *ServiceError {
	return New(ErrCodeInvalidRecord, "invalid record", http.StatusBadRequest).
		WithDetails("reason", reason)
}

// UnknownModel is returned when a caller references an embedding model the tenant has not activated.
func UnknownModel(model string) *ServiceError {
	return New(ErrCodeUnknownModel, "unknown embedding model", http.StatusBadRequest).
		WithDetails("model", model)
}

// BadLayer is returned for an unrecognized or disallowed layer value.
func BadLayer(layer string) *ServiceError {
	return New(ErrCodeBadLayer, "invalid layer", http.StatusBadRequest).
		WithDetails("layer", layer)
}

// Conflict errors

// StaleEmbedding is returned when an embedding's content hash no longer matches its record.
func StaleEmbedding(memoryID, model string) *ServiceError {
	return New(ErrCodeStaleEmbedding, "embedding is stale", http.StatusConflict).
		WithDetails("memory_id", memoryID).
		WithDetails("model", model)
}

// OptimisticConcurrency is returned when a mutation loses a compare-and-swap race.
func OptimisticConcurrency(recordID string) *ServiceError {
	return New(ErrCodeOptimisticConcurrency, "concurrent modification", http.StatusConflict).
		WithDetails("record_id", recordID)
}

// Throttling errors

// TenantThrottled is returned when a tenant's in-flight request cap is reached.
func TenantThrottled(tenant string) *ServiceError {
	return New(ErrCodeTenantThrottled, "tenant request quota exceeded", http.StatusTooManyRequests).
		WithDetails("tenant", tenant)
}

// ProviderRateLimited is returned when an upstream LLM provider rate-limits the gateway.
func ProviderRateLimited(provider string) *ServiceError {
	return New(ErrCodeProviderRateLimited, "provider rate limited", http.StatusTooManyRequests).
		WithDetails("provider", provider)
}

// Internal wraps an unexpected error that does not fit a more specific code.
func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code an adapter should use for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err is a ServiceError with the given code.
func Is(err error, code ErrorCode) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code == code
	}
	return false
}
