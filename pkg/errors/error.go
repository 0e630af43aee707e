package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error code in the system.
type ErrorCode string

const (
	// GeneralInternalServerError represents a generic internal server error.
	GeneralInternalServerError ErrorCode = "general_internal_server_error"
	// GeneralBadRequestError represents a generic bad request error.
	GeneralBadRequestError ErrorCode = "general_bad_request_error"
	// GeneralNotFoundError represents a generic not found error.
	GeneralNotFoundError ErrorCode = "general_not_found_error"
	// GeneralRepositoryError represents a generic repository error.
	GeneralRepositoryError ErrorCode = "general_repository_error"

	// ErrInsufficientFunds is returned when a bid reservation exceeds the
	// user's available currency balance.
	ErrInsufficientFunds ErrorCode = "insufficient_funds"
	// ErrInsufficientHoldings is returned when an ask reservation exceeds the
	// user's available asset holding.
	ErrInsufficientHoldings ErrorCode = "insufficient_holdings"
	// ErrInvalidQuantity is returned when an order quantity is zero or negative.
	ErrInvalidQuantity ErrorCode = "invalid_quantity"
	// ErrInvalidPrice is returned when a limit order price is zero or negative.
	ErrInvalidPrice ErrorCode = "invalid_price"
	// ErrMarketDataUnavailable is returned when a market order is placed before
	// any order book snapshot has been received for the market.
	ErrMarketDataUnavailable ErrorCode = "market_data_unavailable"
	// ErrStaleOrderState marks a settlement attempt that found the order no
	// longer pending/partial. Resolved as a silent no-op, never surfaced.
	ErrStaleOrderState ErrorCode = "stale_order_state"
	// ErrOrderNotFound is returned when an order id does not exist.
	ErrOrderNotFound ErrorCode = "order_not_found"
	// ErrTransientStorageFailure marks a storage error that aborted a single
	// settlement attempt; the order is retried by the next snapshot event.
	ErrTransientStorageFailure ErrorCode = "transient_storage_failure"

	// RedisConfigError represents an error when the Redis configuration is invalid or nil.
	RedisConfigError ErrorCode = "redis_config_error"
	// RedisConnectionError represents an error when connecting to Redis.
	RedisConnectionError ErrorCode = "redis_connection_error"
	// RedisDisconnectionError represents an error when disconnecting from Redis.
	RedisDisconnectionError ErrorCode = "redis_disconnection_error"
	// RedisPingError represents an error when pinging Redis.
	RedisPingError ErrorCode = "redis_pinging_error"
	// RedisGetError represents an error when getting a value from Redis.
	RedisGetError ErrorCode = "redis_get_error"
	// RedisSetError represents an error when setting a value in Redis.
	RedisSetError ErrorCode = "redis_set_error"
	// RedisHSetError represents an error when setting fields in a hash in Redis.
	RedisHSetError ErrorCode = "redis_hset_error"
)

// ErrorDetails represents detailed information about an error.
type ErrorDetails struct {
	// Message is the user-defined error message.
	Message string

	// Code is the machine-readable error code.
	Code ErrorCode

	// Field is the related field the error occurred on, if any.
	Field string
}

// NewErrorDetails creates a new ErrorDetails with the given parameters.
func NewErrorDetails(message string, code ErrorCode, field string) *ErrorDetails {
	return &ErrorDetails{
		Message: message,
		Code:    code,
		Field:   field,
	}
}

// Error implements the error interface.
func (e *ErrorDetails) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Code extracts the ErrorCode from err, unwrapping as needed. Returns
// GeneralInternalServerError when no coded error is found in the chain.
func Code(err error) ErrorCode {
	var details *ErrorDetails
	if stderrors.As(err, &details) {
		return details.Code
	}
	return GeneralInternalServerError
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var details *ErrorDetails
	if stderrors.As(err, &details) {
		return details.Code == code
	}
	return false
}
