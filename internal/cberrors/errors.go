// Package cberrors defines the typed error taxonomy shared by the chain
// adapters, normalizer and finalization service. Errors are classified once
// at the I/O boundary and discriminated with errors.Is/As downstream; no
// layer re-derives a class from message text.
package cberrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownChain reports a chain name or numeric id that is not in the
	// registry. Configuration miss, fatal, not retryable.
	ErrUnknownChain = errors.New("unknown chain")

	// ErrUnsupportedChain reports an operation attempted against a chain
	// family the caller does not support.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrUnknownForeignChain reports a cross-chain record whose embedded
	// chain id does not resolve in the registry.
	ErrUnknownForeignChain = errors.New("unknown foreign chain")

	// ErrUnresolvedToken reports a token address with no catalog entry.
	// Fatal for the record; amounts are never defaulted from raw values.
	ErrUnresolvedToken = errors.New("unresolved token")

	// ErrEntityNotFound reports that the chain confirmed the entity is
	// absent. Listing flows treat it as "nothing to return"; finalize flows
	// treat it as a request failure.
	ErrEntityNotFound = errors.New("entity not found on chain")

	// ErrDuplicateFinalization reports an entity that is already finalized.
	// The finalize endpoints treat it as idempotent success.
	ErrDuplicateFinalization = errors.New("entity already finalized")

	// ErrUnauthorizedHost reports a signature/address mismatch with the
	// entity's recorded owner.
	ErrUnauthorizedHost = errors.New("wallet does not own this entity")
)

// TransientError wraps a network/RPC failure that the caller may retry with
// backoff. It is assigned exactly once, by the chain client that observed
// the failure.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient tags err as retryable.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// FatalStoreError wraps a persistence failure that happened after a
// successful on-chain fetch. It must surface distinctly from not-found.
type FatalStoreError struct {
	Op  string
	Err error
}

func (e *FatalStoreError) Error() string {
	return fmt.Sprintf("fatal store failure: %s: %v", e.Op, e.Err)
}

func (e *FatalStoreError) Unwrap() error { return e.Err }

// FatalStore tags err as a non-retryable persistence failure.
func FatalStore(op string, err error) error {
	return &FatalStoreError{Op: op, Err: err}
}
