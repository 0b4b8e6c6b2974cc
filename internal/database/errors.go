package database

import "errors"

var (
	// ErrChainBroken is returned by VerifyChain when a row does not match
	// its stored hash or does not link to its predecessor.
	ErrChainBroken = errors.New("rotation history hash chain is broken")

	// ErrNotFound is returned when a database file is required but missing.
	ErrNotFound = errors.New("history database not found")

	// ErrNilRecord is returned when InsertRotation is called with nil.
	ErrNilRecord = errors.New("rotation record is nil")
)
