// =============================================================================
// ERRORS.GO - Typed Validation & Sync Error Kinds
// =============================================================================

package main

import "fmt"

// MalformedTransactionError reports a transaction that fails structural
// validation (empty endpoint, negative amount).
type MalformedTransactionError struct {
	TxID   string
	Reason string
}

func (e *MalformedTransactionError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("malformed transaction %s: %s", e.TxID, e.Reason)
	}
	return fmt.Sprintf("malformed transaction: %s", e.Reason)
}

// LinkageError reports a block that does not extend its predecessor
// (index or previous-hash mismatch).
type LinkageError struct {
	Field    string
	Expected string
	Got      string
}

func (e *LinkageError) Error() string {
	return fmt.Sprintf("linkage failure on %s: expected %s, got %s", e.Field, e.Expected, e.Got)
}

// ProofOfWorkError reports a block whose stored hash does not satisfy the
// difficulty predicate or does not match the recomputed hash.
type ProofOfWorkError struct {
	Hash   string
	Reason string
}

func (e *ProofOfWorkError) Error() string {
	return fmt.Sprintf("proof of work failure for hash %s: %s", e.Hash, e.Reason)
}

// InvalidChainError reports full-chain validation failure, carrying the index
// of the first offending block and the underlying cause.
type InvalidChainError struct {
	BlockIndex int64
	Err        error
}

func (e *InvalidChainError) Error() string {
	return fmt.Sprintf("invalid chain at block %d: %v", e.BlockIndex, e.Err)
}

func (e *InvalidChainError) Unwrap() error { return e.Err }

// NotLongerError reports a replacement chain that is not strictly longer than
// the local chain. Equal length never replaces.
type NotLongerError struct {
	LocalLength     int
	CandidateLength int
}

func (e *NotLongerError) Error() string {
	return fmt.Sprintf("candidate chain length %d does not exceed local length %d",
		e.CandidateLength, e.LocalLength)
}

// StaleMiningResultError reports a sealed block built on a head that moved
// before the result could commit. The result is discarded, never appended.
type StaleMiningResultError struct {
	BuiltOn  string
	LiveHead string
}

func (e *StaleMiningResultError) Error() string {
	return fmt.Sprintf("mining result built on stale head %s (live head %s)", e.BuiltOn, e.LiveHead)
}

// PeerUnreachableError reports a peer that could not be reached or returned
// an unusable response. Never fatal to the caller.
type PeerUnreachableError struct {
	Endpoint string
	Err      error
}

func (e *PeerUnreachableError) Error() string {
	return fmt.Sprintf("peer %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *PeerUnreachableError) Unwrap() error { return e.Err }
