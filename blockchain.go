// =============================================================================
// BLOCKCHAIN.GO - Ledger (Append / Replace / Snapshot)
// =============================================================================

package main

import (
	"fmt"
	"log"
	"sync"
)

// Ledger is the node's ordered block sequence. All mutation goes through
// Append and Replace under one mutex; both are all-or-nothing. Every commit
// bumps the version counter and signals the head-change channel, which miners
// use to abandon work built on a superseded head.
type Ledger struct {
	mu      sync.RWMutex
	blocks  []*Block
	version uint64
	headCh  chan struct{}
	store   *ChainStore
}

// NewLedger builds a ledger, restoring from the store when one is attached.
// A persisted chain is fully revalidated before it is trusted; a corrupted
// or foreign genesis makes startup fail so the caller can abort.
func NewLedger(store *ChainStore) (*Ledger, error) {
	l := &Ledger{
		headCh: make(chan struct{}),
		store:  store,
	}

	if store != nil {
		chain, err := store.LoadChain()
		if err != nil {
			return nil, fmt.Errorf("load persisted chain: %w", err)
		}
		if len(chain) > 0 {
			if err := ValidateChain(chain); err != nil {
				return nil, fmt.Errorf("persisted chain rejected: %w", err)
			}
			l.blocks = chain
			log.Printf("✅ Restored chain from disk (height %d)", len(chain)-1)
		}
	}

	if l.blocks == nil {
		l.blocks = []*Block{GenesisBlock()}
		if store != nil {
			if err := store.SaveChain(l.blocks); err != nil {
				return nil, fmt.Errorf("persist genesis: %w", err)
			}
		}
	}

	return l, nil
}

// Append validates candidate against the current head and extends the chain.
func (l *Ledger) Append(candidate *Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(candidate)
}

// AppendIfVersion extends the chain only if no commit has landed since the
// caller observed version. Used by the miner to reject stale results.
func (l *Ledger) AppendIfVersion(candidate *Block, version uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.version != version {
		return &StaleMiningResultError{
			BuiltOn:  candidate.PreviousHash,
			LiveHead: l.blocks[len(l.blocks)-1].Hash,
		}
	}
	return l.appendLocked(candidate)
}

func (l *Ledger) appendLocked(candidate *Block) error {
	head := l.blocks[len(l.blocks)-1]
	if err := ValidateBlock(candidate, head); err != nil {
		return err
	}

	if l.store != nil {
		if err := l.store.SaveBlock(candidate); err != nil {
			return fmt.Errorf("persist block %d: %w", candidate.Index, err)
		}
	}

	l.blocks = append(l.blocks, candidate)
	l.commitLocked()
	return nil
}

// Replace swaps in a strictly longer, independently validated chain.
// Length among valid chains is the sole consensus rule.
func (l *Ledger) Replace(chain []*Block) error {
	if err := ValidateChain(chain); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(chain) <= len(l.blocks) {
		return &NotLongerError{
			LocalLength:     len(l.blocks),
			CandidateLength: len(chain),
		}
	}

	if l.store != nil {
		if err := l.store.SaveChain(chain); err != nil {
			return fmt.Errorf("persist replacement chain: %w", err)
		}
	}

	l.blocks = append([]*Block(nil), chain...)
	l.commitLocked()
	return nil
}

// commitLocked finalizes a mutation: bump version, wake head watchers.
func (l *Ledger) commitLocked() {
	l.version++
	close(l.headCh)
	l.headCh = make(chan struct{})
}

// Snapshot returns a point-in-time copy of the chain. Sealed blocks are
// immutable, so sharing the block pointers is safe.
func (l *Ledger) Snapshot() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Head returns the current tip.
func (l *Ledger) Head() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1]
}

// HeadVersion returns the tip together with the version it was observed at,
// in one consistent read.
func (l *Ledger) HeadVersion() (*Block, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1], l.version
}

// Length returns the number of blocks including genesis.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// Version returns the commit counter. It bumps on every Append and Replace.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// WaitHeadChange returns a channel closed on the next commit.
func (l *Ledger) WaitHeadChange() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headCh
}

// =============================================================================
// CHAIN STATISTICS
// =============================================================================

// ChainStats summarizes the chain for the stats endpoint and the console.
type ChainStats struct {
	Height            int64   `json:"height"`
	BlockCount        int     `json:"block_count"`
	TotalTransactions int     `json:"total_transactions"`
	TotalValue        float64 `json:"total_value"`
	TotalFees         float64 `json:"total_fees"`
	HeadHash          string  `json:"head_hash"`
	HeadDifficulty    int     `json:"head_difficulty"`
}

// Stats walks the chain and aggregates totals. Fees are flat per transaction.
func (l *Ledger) Stats(feePerTx float64) ChainStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := ChainStats{
		Height:     l.blocks[len(l.blocks)-1].Index,
		BlockCount: len(l.blocks),
	}
	for _, b := range l.blocks {
		stats.TotalTransactions += len(b.Transactions)
		for _, tx := range b.Transactions {
			stats.TotalValue += tx.Amount
		}
	}
	stats.TotalFees = float64(stats.TotalTransactions) * feePerTx
	head := l.blocks[len(l.blocks)-1]
	stats.HeadHash = head.Hash
	stats.HeadDifficulty = head.Difficulty
	return stats
}
