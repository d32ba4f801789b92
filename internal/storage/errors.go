package storage

import "errors"

// Storage errors shared by the receipt journal and the snapshot store.
// Both are append-only: a confirmed transfer receipt is never rewritten.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a receipt or snapshot
	// whose key already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
