package errors

import (
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents request validation errors (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryTransport represents network or fetch errors against a platform
	CategoryTransport ErrorCategory = "transport"
	// CategoryBotDetection represents anti-bot interstitials served by a platform
	CategoryBotDetection ErrorCategory = "bot_detection"
	// CategoryExtraction represents page parsing and extraction errors
	CategoryExtraction ErrorCategory = "extraction"
	// CategoryRateLimit represents rate limit and budget errors
	CategoryRateLimit ErrorCategory = "rate_limited"
	// CategoryStorage represents database errors
	CategoryStorage ErrorCategory = "storage"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategorySystem represents internal system errors (5xx)
	CategorySystem ErrorCategory = "internal"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Validation Errors (4xx)

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewMissingMakeError creates an error for a search missing the required make
func NewMissingMakeError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "MISSING_MAKE",
		Message:    "search criteria must include a make",
	}
}

// NewUnknownPlatformError creates an error for an unrecognized platform key
func NewUnknownPlatformError(platform string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "UNKNOWN_PLATFORM",
		Message:    fmt.Sprintf("unknown platform: %s", platform),
		Details: map[string]interface{}{
			"platform": platform,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewJobNotFoundError creates an error for an unknown scrape job ID
func NewJobNotFoundError(jobID string) *CategorizedError {
	return NewNotFoundError("scrape job", jobID)
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewBudgetExceededError creates an error for an exhausted daily page budget
func NewBudgetExceededError(platform string, limit int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "BUDGET_EXCEEDED",
		Message:    fmt.Sprintf("daily page budget exhausted for %s (limit: %d)", platform, limit),
		Details: map[string]interface{}{
			"platform": platform,
			"limit":    limit,
		},
	}
}

// Scraping Errors

// NewTransportError creates an error for a failed fetch against a platform
func NewTransportError(platform string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusBadGateway,
		Code:       "TRANSPORT_ERROR",
		Message:    fmt.Sprintf("fetch failed for platform: %s", platform),
		Cause:      cause,
		Details: map[string]interface{}{
			"platform": platform,
		},
	}
}

// NewBotDetectionError creates an error for an anti-bot interstitial
func NewBotDetectionError(platform string, marker string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryBotDetection,
		StatusCode: http.StatusBadGateway,
		Code:       "BOT_DETECTED",
		Message:    fmt.Sprintf("bot detection triggered on %s (marker: %q)", platform, marker),
		Details: map[string]interface{}{
			"platform": platform,
			"marker":   marker,
		},
	}
}

// NewExtractionError creates an error for a page that could not be parsed
func NewExtractionError(platform string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExtraction,
		StatusCode: http.StatusBadGateway,
		Code:       "EXTRACTION_ERROR",
		Message:    fmt.Sprintf("extraction failed for platform: %s", platform),
		Cause:      cause,
		Details: map[string]interface{}{
			"platform": platform,
		},
	}
}

// NewRenderTimeoutError creates an error for a browser render that timed out
func NewRenderTimeoutError(platform string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "RENDER_TIMEOUT",
		Message:    fmt.Sprintf("browser render timed out for platform: %s", platform),
		Details: map[string]interface{}{
			"platform": platform,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewStorageError creates a database error
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStorage,
		StatusCode: http.StatusInternalServerError,
		Code:       "STORAGE_ERROR",
		Message:    fmt.Sprintf("storage error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized, return as-is
	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// GetCategory returns the category of an error
func GetCategory(err error) ErrorCategory {
	if catErr := Categorize(err); catErr != nil {
		return catErr.Category
	}
	return CategorySystem
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsBotDetection reports whether an error came from an anti-bot interstitial
func IsBotDetection(err error) bool {
	return GetCategory(err) == CategoryBotDetection
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	// Bot detection is terminal for the current page sequence
	switch catErr.Category {
	case CategoryTransport, CategoryStorage, CategoryCache, CategoryRateLimit:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
