package main

import (
	"context"
	"testing"
)

// mkTx builds a transaction with a fixed timestamp so tests are repeatable.
func mkTx(sender, recipient string, amount float64, ts int64) *Transaction {
	tx := &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Timestamp: ts,
	}
	tx.EnsureID()
	return tx
}

// sealNext mines a real block extending prev at the given difficulty.
func sealNext(t *testing.T, prev *Block, txs []*Transaction, miner string, difficulty int) *Block {
	t.Helper()

	b := NewCandidateBlock(prev, txs, miner, difficulty)
	engine := &ReferenceEngine{}
	nonce, hash, err := engine.Mine(context.Background(), b.CanonicalBase(), difficulty)
	if err != nil {
		t.Fatalf("sealing block %d: %v", b.Index, err)
	}
	b.Nonce = nonce
	b.Hash = hash
	return b
}

// buildChain mines a chain of the given total length (including genesis).
func buildChain(t *testing.T, length, difficulty int) []*Block {
	t.Helper()

	chain := []*Block{GenesisBlock()}
	for i := 1; i < length; i++ {
		tx := mkTx("alice", "bob", float64(i), int64(1700000000+i))
		chain = append(chain, sealNext(t, chain[i-1], []*Transaction{tx}, "miner-1", difficulty))
	}
	return chain
}
