// =============================================================================
// VALIDATOR.GO - Block & Chain Validation
// =============================================================================

package main

import "strconv"

// ValidateBlock checks that candidate validly extends previous: structural
// transaction validity, index and hash linkage, and the proof-of-work seal.
// Side-effect-free; a failed block is rejected, never repaired.
func ValidateBlock(candidate, previous *Block) error {
	for _, tx := range candidate.Transactions {
		if err := tx.Validate(); err != nil {
			return err
		}
	}

	if candidate.Index != previous.Index+1 {
		return &LinkageError{
			Field:    "index",
			Expected: strconv.FormatInt(previous.Index+1, 10),
			Got:      strconv.FormatInt(candidate.Index, 10),
		}
	}
	if candidate.PreviousHash != previous.Hash {
		return &LinkageError{
			Field:    "previous_hash",
			Expected: previous.Hash,
			Got:      candidate.PreviousHash,
		}
	}

	if !candidate.MeetsDifficulty() {
		return &ProofOfWorkError{
			Hash:   candidate.Hash,
			Reason: "difficulty predicate not satisfied at difficulty " + strconv.Itoa(candidate.Difficulty),
		}
	}
	if recomputed := candidate.ComputeHash(); recomputed != candidate.Hash {
		return &ProofOfWorkError{
			Hash:   candidate.Hash,
			Reason: "stored hash does not match recomputed hash " + recomputed,
		}
	}

	return nil
}

// ValidateChain verifies a full chain: exact genesis, then every adjacent
// pair through ValidateBlock. Fails fast at the first offending block.
func ValidateChain(blocks []*Block) error {
	if len(blocks) == 0 {
		return &InvalidChainError{BlockIndex: 0, Err: &LinkageError{
			Field: "chain", Expected: "genesis", Got: "empty",
		}}
	}

	if !blocks[0].IsGenesis() {
		return &InvalidChainError{BlockIndex: 0, Err: &ProofOfWorkError{
			Hash:   blocks[0].Hash,
			Reason: "genesis block does not match the network constant",
		}}
	}

	for i := 1; i < len(blocks); i++ {
		if err := ValidateBlock(blocks[i], blocks[i-1]); err != nil {
			return &InvalidChainError{BlockIndex: int64(i), Err: err}
		}
	}
	return nil
}
