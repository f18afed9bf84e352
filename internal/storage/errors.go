package storage

import "errors"

var (
	// ErrInvalidInput is returned for an empty account, chain or token address,
	// or a malformed record.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateKey is returned when a record with the same id already exists.
	ErrDuplicateKey = errors.New("duplicate key")
)
