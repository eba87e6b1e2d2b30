// Package claimerr defines the engine-wide error taxonomy and its mapping
// to HTTP status codes, the way callers at the edge of the system need to
// translate an internal failure into a response without reaching back into
// package internals.
package claimerr

import (
	"errors"
	"net/http"
)

// Kind identifies which failure mode an Error represents.
type Kind int

const (
	// MalformedClaim means the claim payload could not be parsed or was
	// missing a mandatory field.
	MalformedClaim Kind = iota
	// DestinationMismatch means the claim's destination_account does not
	// match the configured destination.
	DestinationMismatch
	// CurrencyInvalid means a stored record's currency does not match
	// the fixed XRP/0.000001 contract.
	CurrencyInvalid
	// InsufficientAuthorization means authorized_to_claim is below the
	// accumulated to_claim total.
	InsufficientAuthorization
	// NoMatchingChannel means the ledger has no channel matching the
	// claim's account/destination/channel_id/amount/settle_delay.
	NoMatchingChannel
	// ExpirableChannel means the matching channel has a cancel_after and
	// is rejected unconditionally.
	ExpirableChannel
	// SignatureInvalid means the ledger could not verify the claim's
	// signature against the matching channel's public key.
	SignatureInvalid
	// NotFound means an operation required a document that does not
	// exist.
	NotFound
	// RateLimited means a rate-limit strategy fired.
	RateLimited
	// InvalidInput means a caller-supplied argument was out of range
	// (negative cost, unknown machine type, and similar).
	InvalidInput
	// InternalInconsistency means stored state contradicted an
	// invariant the caller was relying on (estimate/exact mismatch,
	// unexpected store state).
	InternalInconsistency
	// Timeout means a caller-supplied deadline elapsed before the
	// operation could commit.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case MalformedClaim:
		return "malformed_claim"
	case DestinationMismatch:
		return "destination_mismatch"
	case CurrencyInvalid:
		return "currency_invalid"
	case InsufficientAuthorization:
		return "insufficient_authorization"
	case NoMatchingChannel:
		return "no_matching_channel"
	case ExpirableChannel:
		return "expirable_channel"
	case SignatureInvalid:
		return "signature_invalid"
	case NotFound:
		return "not_found"
	case RateLimited:
		return "rate_limited"
	case InvalidInput:
		return "invalid_input"
	case InternalInconsistency:
		return "internal_inconsistency"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every engine operation that
// can fail in a taxonomy-classified way.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error's Kind to the status code of spec §7. Timeout
// has no fixed mapping and is reported to the caller as-is (0).
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case MalformedClaim, DestinationMismatch, CurrencyInvalid,
		InsufficientAuthorization, NoMatchingChannel, ExpirableChannel,
		SignatureInvalid, NotFound:
		return http.StatusPaymentRequired
	case RateLimited:
		return http.StatusTooManyRequests
	case InvalidInput:
		return http.StatusBadRequest
	case InternalInconsistency:
		return http.StatusInternalServerError
	case Timeout:
		return 0
	default:
		return http.StatusInternalServerError
	}
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that carries an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
