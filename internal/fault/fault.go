// Package fault defines the typed failure values shared by the coordination
// core. Every recoverable failure carries a machine-readable code, a stable
// reason string, and structured details for the calling UI.
package fault

import (
	"errors"
	"fmt"
)

// Code classifies a failure into the coarse taxonomy the API maps to HTTP
// statuses. Reasons refine codes; codes never change meaning.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeNotAuthorized     Code = "NOT_AUTHORIZED"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeValidation        Code = "VALIDATION"
	CodeInternal          Code = "INTERNAL"
)

// Stable reason strings. These are part of the wire contract with the front
// end and must not be renamed.
const (
	ReasonRequestNotFound     = "request_not_found"
	ReasonFulfillmentNotFound = "fulfillment_not_found"
	ReasonItemNotFound        = "item_not_found"
	ReasonSupplierNotFound    = "supplier_not_found"
	ReasonOrgNotFound         = "org_not_found"

	ReasonNotAuthorized = "not_authorized"
	ReasonNotAssigned   = "not_assigned"
	ReasonNotOwner      = "not_owner"

	ReasonRequestClosed      = "request_closed"
	ReasonNotPending         = "not_pending"
	ReasonDuplicateResponder = "duplicate_responder"
	ReasonAlreadyProcessed   = "already_processed"
	ReasonNotAccepted        = "not_accepted"
	ReasonNotDispatched      = "not_dispatched"
	ReasonNotDelivered       = "not_delivered"
	ReasonNotComplete        = "not_complete"
	ReasonAlreadyRated       = "already_rated"
	ReasonStatusRegression   = "status_regression"

	ReasonInsufficientStock = "insufficient_stock"

	ReasonMissingField = "missing_field"
	ReasonInvalidField = "invalid_field"

	ReasonInternal = "internal_error"
)

// Fault is the error type returned by all core operations.
type Fault struct {
	Code    Code           `json:"code"`
	Reason  string         `json:"reason_code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	cause error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Code, f.Reason, f.Message)
}

// With attaches a structured detail and returns the fault for chaining.
func (f *Fault) With(key string, value any) *Fault {
	if f.Details == nil {
		f.Details = make(map[string]any)
	}
	f.Details[key] = value
	return f
}

// New creates a fault with the given code and reason.
func New(code Code, reason, format string, args ...any) *Fault {
	return &Fault{
		Code:    code,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound creates a CodeNotFound fault.
func NotFound(reason, format string, args ...any) *Fault {
	return New(CodeNotFound, reason, format, args...)
}

// NotAuthorized creates a CodeNotAuthorized fault.
func NotAuthorized(reason, format string, args ...any) *Fault {
	return New(CodeNotAuthorized, reason, format, args...)
}

// InvalidState creates a CodeInvalidState fault.
func InvalidState(reason, format string, args ...any) *Fault {
	return New(CodeInvalidState, reason, format, args...)
}

// InsufficientStock creates a CodeInsufficientStock fault.
func InsufficientStock(format string, args ...any) *Fault {
	return New(CodeInsufficientStock, ReasonInsufficientStock, format, args...)
}

// Invalid creates a CodeValidation fault.
func Invalid(reason, format string, args ...any) *Fault {
	return New(CodeValidation, reason, format, args...)
}

// Internal wraps an unexpected error. The wrapped error is preserved for
// logging but never serialized to the caller.
func Internal(err error) *Fault {
	f := New(CodeInternal, ReasonInternal, "internal error")
	f.cause = err
	return f
}

func (f *Fault) Unwrap() error { return f.cause }

// CodeOf extracts the fault code from an error chain.
// Returns CodeInternal for non-fault errors.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given fault code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// As extracts the fault from an error chain, or nil.
func As(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return nil
}
