package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tags an error with its place in the failure taxonomy so callers
// branch on kind instead of sniffing messages.
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation"
	KindAuth                 ErrorKind = "auth"
	KindQuotaExceeded        ErrorKind = "quota_exceeded"
	KindProviderBillingLimit ErrorKind = "provider_billing_limit"
	KindProviderRejected     ErrorKind = "provider_rejected"
	KindProviderUnreachable  ErrorKind = "provider_unreachable"
	KindPollingTimedOut      ErrorKind = "polling_timed_out"
	KindMaterialization      ErrorKind = "materialization_failed"
	KindPersistence          ErrorKind = "persistence_failed"
	KindCacheReconciliation  ErrorKind = "cache_reconciliation_failed"
	KindNotFound             ErrorKind = "not_found"
	KindInternal             ErrorKind = "internal"
)

// Error carries a taxonomy kind, a user-presentable message and, for provider
// failures, the provider's own status code and error code forwarded verbatim.
type Error struct {
	Kind           ErrorKind
	Message        string
	ProviderStatus int
	ProviderCode   string
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a tagged error without a cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds a tagged error around a cause.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the taxonomy kind from err, or KindInternal when the error
// is untagged.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsError returns the tagged error inside err, or nil.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// HTTPStatus maps a taxonomy kind onto the HTTP surface contract.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return 400
	case KindAuth:
		return 401
	case KindProviderBillingLimit:
		return 402
	case KindQuotaExceeded:
		return 403
	case KindNotFound:
		return 404
	default:
		return 500
	}
}
