package types

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error classification. Callers should
// switch on Kind rather than match error strings.
type Kind string

const (
	KindConfigError              Kind = "config_error"
	KindNetworkError             Kind = "network_error"
	KindTimeout                  Kind = "timeout"
	KindAuthError                Kind = "auth_error"
	KindEndpointError            Kind = "endpoint_error"
	KindTransactionAlreadyActive Kind = "transaction_already_active"
	KindNoTransactionInProgress  Kind = "no_transaction_in_progress"
	KindDimensionMismatch        Kind = "dimension_mismatch"
	KindNonFiniteEmbedding       Kind = "non_finite_embedding"
	KindInvalidConcepts          Kind = "invalid_concepts"
	KindInteractionNotFound      Kind = "interaction_not_found"
	KindDuplicateInteractionID   Kind = "duplicate_interaction_id"
	KindCacheStale               Kind = "cache_stale"
)

// Error is the tagged error type this module uses for its classified
// failures; some errors (e.g. a wrapped collaborator or file error) are
// returned as plain wrapped errors instead. It carries a stable Kind alongside the usual wrapped cause so
// callers can branch on errors.As without parsing messages.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a Kind-tagged error, optionally wrapping a cause.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error. Returns "" if none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is a tagged Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
