package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type for bot operations.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates the user is not on the allow list.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimited indicates the user sent too many requests.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeAddressNotFound indicates no address could be extracted.
	ErrCodeAddressNotFound ErrorCode = "ADDRESS_NOT_FOUND"
	// ErrCodeInvalidAddress indicates the extracted addresses look implausible.
	ErrCodeInvalidAddress ErrorCode = "INVALID_ADDRESS"
	// ErrCodeValuationFailed indicates the valuation agent failed.
	ErrCodeValuationFailed ErrorCode = "VALUATION_FAILED"
	// ErrCodeLLMUnavailable indicates the LLM service is not available.
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"
	// ErrCodeSearchUnavailable indicates the search service is not available.
	ErrCodeSearchUnavailable ErrorCode = "SEARCH_UNAVAILABLE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeCacheDisabled indicates a cache command ran with caching off.
	ErrCodeCacheDisabled ErrorCode = "CACHE_DISABLED"
)

// BotError represents a structured error with a user-facing code.
type BotError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *BotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *BotError) Unwrap() error {
	return e.Cause
}

// Convenience constructors for common error types.

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *BotError {
	return &BotError{Code: ErrCodeUnauthorized, Message: msg}
}

// RateLimited creates a rate limited error.
func RateLimited(msg string) *BotError {
	return &BotError{Code: ErrCodeRateLimited, Message: msg}
}

// AddressNotFound creates an address not found error.
func AddressNotFound(msg string) *BotError {
	return &BotError{Code: ErrCodeAddressNotFound, Message: msg}
}

// InvalidAddress creates an invalid address error.
func InvalidAddress(addresses []string) *BotError {
	return &BotError{
		Code:    ErrCodeInvalidAddress,
		Message: fmt.Sprintf("invalid addresses: %q", addresses),
	}
}

// ValuationFailed creates a valuation failed error.
func ValuationFailed(cause error) *BotError {
	return &BotError{Code: ErrCodeValuationFailed, Message: "valuation failed", Cause: cause}
}

// LLMUnavailable creates an LLM unavailable error.
func LLMUnavailable(cause error) *BotError {
	return &BotError{Code: ErrCodeLLMUnavailable, Message: "LLM unavailable", Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(cause error) *BotError {
	return &BotError{Code: ErrCodeTimeout, Message: "operation timed out", Cause: cause}
}

// CacheDisabled creates a cache disabled error.
func CacheDisabled() *BotError {
	return &BotError{Code: ErrCodeCacheDisabled, Message: "cache is not enabled"}
}

// Wrap wraps an existing error with a code.
func Wrap(cause error, code ErrorCode, msg string) *BotError {
	return &BotError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if any error in the chain has the given code.
func IsCode(err error, code ErrorCode) bool {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr.Code == code
	}
	return false
}

// CodeOf extracts the error code from any error.
// Returns the provided default code if the chain holds no BotError.
func CodeOf(err error, defaultCode ErrorCode) ErrorCode {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr.Code
	}
	return defaultCode
}
