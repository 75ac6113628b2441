package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record with
	// a key that already exists (intent id, transaction signature).
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientFunds is returned by a debit that would take a
	// balance below zero. The balance is left unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLimitExceeded is returned by a credit that would exceed the
	// wallet's daily credit limit. The balance is left unchanged.
	ErrLimitExceeded = errors.New("daily credit limit exceeded")
)
