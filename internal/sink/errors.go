package sink

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// duplicateCustomerCode is the sink's error code for a create rejected
// because the customer identity already exists.
const duplicateCustomerCode = "duplicate_customer"

// APIError is a non-2xx response from the sink API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sink api: status %d code=%q: %s", e.StatusCode, e.Code, e.Message)
}

// RateLimited reports whether the sink asked us to slow down.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Transient reports whether the call is worth retrying.
func (e *APIError) Transient() bool {
	return e.RateLimited() || e.StatusCode >= 500
}

// DuplicateIdentity reports whether the create was rejected for a customer
// identity that already exists on the sink. This is the one conflict with a
// dedicated recovery path: re-resolve the order and update instead.
func (e *APIError) DuplicateIdentity() bool {
	return (e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusUnprocessableEntity) &&
		e.Code == duplicateCustomerCode
}

// IsDuplicateIdentity reports whether err is a duplicate-identity conflict.
func IsDuplicateIdentity(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.DuplicateIdentity()
}

// IsTransient reports whether err is worth retrying: a transient API status
// or a network-level timeout.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
