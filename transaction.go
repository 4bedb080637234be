// =============================================================================
// TRANSACTION.GO - Transaction Model & Pending Pool
// =============================================================================

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Transaction represents a single transfer recorded on the chain.
// Immutable once included in a block.
type Transaction struct {
	ID        string  `json:"id"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

// NewTransaction creates a validated transaction stamped with the current time.
func NewTransaction(sender, recipient string, amount float64) (*Transaction, error) {
	tx := &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Timestamp: time.Now().Unix(),
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	tx.ID = tx.computeID()
	return tx, nil
}

// Validate checks structural validity. Signature verification is out of scope;
// transactions are trusted on structure alone. Safe on a nil receiver: peer
// chains can carry JSON null entries, which decode to nil.
func (tx *Transaction) Validate() error {
	if tx == nil {
		return &MalformedTransactionError{Reason: "missing transaction"}
	}
	if tx.Sender == "" {
		return &MalformedTransactionError{TxID: tx.ID, Reason: "empty sender"}
	}
	if tx.Recipient == "" {
		return &MalformedTransactionError{TxID: tx.ID, Reason: "empty recipient"}
	}
	if tx.Amount < 0 {
		return &MalformedTransactionError{
			TxID:   tx.ID,
			Reason: fmt.Sprintf("negative amount %.8f", tx.Amount),
		}
	}
	return nil
}

// computeID derives the deterministic 0x-prefixed transaction identifier.
func (tx *Transaction) computeID() string {
	payload := fmt.Sprintf("%s|%s|%.8f|%d", tx.Sender, tx.Recipient, tx.Amount, tx.Timestamp)
	sum := sha256.Sum256([]byte(payload))
	return "0x" + hex.EncodeToString(sum[:])
}

// EnsureID fills in the ID for transactions received without one.
func (tx *Transaction) EnsureID() {
	if tx.ID == "" {
		tx.ID = tx.computeID()
	}
}

// compact renders the fixed form hashed into the block canonical base.
func (tx *Transaction) compact() string {
	return fmt.Sprintf("%s:%s:%.8f:%d", tx.Sender, tx.Recipient, tx.Amount, tx.Timestamp)
}

// =============================================================================
// PENDING TRANSACTION POOL
// =============================================================================

// TxPool holds validated transactions awaiting inclusion in a block.
// Deduplicates by ID, preserves arrival order.
type TxPool struct {
	mu    sync.RWMutex
	byID  map[string]*Transaction
	order []*Transaction
}

// NewTxPool creates an empty pending pool.
func NewTxPool() *TxPool {
	return &TxPool{byID: make(map[string]*Transaction)}
}

// Add validates and admits a transaction. Duplicates are rejected.
func (p *TxPool) Add(tx *Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	tx.EnsureID()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[tx.ID]; exists {
		return fmt.Errorf("transaction %s already pending", tx.ID)
	}

	p.byID[tx.ID] = tx
	p.order = append(p.order, tx)
	return nil
}

// Pending returns up to limit transactions in arrival order (0 means all).
func (p *TxPool) Pending(limit int) []*Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Transaction, n)
	copy(out, p.order[:n])
	return out
}

// Remove drops the given transaction IDs from the pool, returning how many
// were actually present. Called after the transactions land in a block.
func (p *TxPool) Remove(ids []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, exists := p.byID[id]; exists {
			delete(p.byID, id)
			removed++
		}
	}
	if removed == 0 {
		return 0
	}

	kept := p.order[:0]
	for _, tx := range p.order {
		if _, exists := p.byID[tx.ID]; exists {
			kept = append(kept, tx)
		}
	}
	p.order = kept
	return removed
}

// Count returns the number of pending transactions.
func (p *TxPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Has reports whether a transaction ID is pending.
func (p *TxPool) Has(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.byID[id]
	return exists
}
