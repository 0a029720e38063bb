// Package errs defines the sentinel error kinds shared across the
// forest packages and a helper to classify a wrapped error against them.
package errs

import "errors"

var (
	// ErrStoreUnavailable wraps any failure reaching the underlying KV store.
	ErrStoreUnavailable = errors.New("forest: store error")

	// ErrNotFound is returned when a requested item or node id does not exist.
	ErrNotFound = errors.New("forest: not found")

	// ErrInvalidInput is returned for caller-supplied values rejected before
	// any transaction is opened (dimension mismatches, bad ids, bad config).
	ErrInvalidInput = errors.New("forest: invalid input")

	// ErrCorruptRecord is returned when a stored record fails to decode.
	ErrCorruptRecord = errors.New("forest: corrupt record")

	// ErrConfigMismatch is returned when the caller-supplied config does not
	// match the on-disk header record.
	ErrConfigMismatch = errors.New("forest: config mismatch with on-disk header")

	// ErrUnknownMetric is returned by metric.ForName for an unrecognized tag.
	// Classify reports it as KindInvalidInput.
	ErrUnknownMetric = errors.New("forest: unknown metric")

	// ErrClosed is returned on any operation against a closed Index.
	ErrClosed = errors.New("forest: index closed")
)

// Kind identifies which of the package sentinels an error wraps, for
// callers that want to branch on error category without importing errors.Is
// call sites everywhere.
type Kind int

const (
	KindUnknown Kind = iota
	KindStoreUnavailable
	KindNotFound
	KindInvalidInput
	KindCorruptRecord
	KindConfigMismatch
	KindClosed
)

// Classify maps err to the Kind of sentinel it wraps, or KindUnknown if it
// wraps none of them.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownMetric):
		return KindInvalidInput
	case errors.Is(err, ErrCorruptRecord):
		return KindCorruptRecord
	case errors.Is(err, ErrConfigMismatch):
		return KindConfigMismatch
	case errors.Is(err, ErrClosed):
		return KindClosed
	default:
		return KindUnknown
	}
}
