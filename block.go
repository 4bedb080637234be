// =============================================================================
// BLOCK.GO - Block Model, Canonical Encoding & Genesis
// =============================================================================

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Genesis constants. Every participant must hold the genesis block
// byte-identically; it is never mined and never recomputed.
const (
	GenesisHash         = "8c6d1d49e1f5a5e3c8801d9f0f9b1e941a5f4d1a04d3e8e19b486241b2e535a0"
	GenesisPreviousHash = "0"
	GenesisMiner        = "GENESIS"
)

// Block is a proof-of-work-sealed batch of transactions.
// Nonce, Hash and Miner are excluded from the hashed canonical base.
type Block struct {
	Index        int64          `json:"index"`
	Timestamp    int64          `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previous_hash"`
	Nonce        int64          `json:"nonce"`
	Difficulty   int            `json:"difficulty"`
	Hash         string         `json:"hash"`
	Miner        string         `json:"miner,omitempty"`
}

// GenesisBlock returns the hardcoded first block.
func GenesisBlock() *Block {
	return &Block{
		Index:        0,
		Timestamp:    0,
		Transactions: []*Transaction{},
		PreviousHash: GenesisPreviousHash,
		Nonce:        0,
		Difficulty:   0,
		Hash:         GenesisHash,
		Miner:        GenesisMiner,
	}
}

// NewCandidateBlock assembles an unsealed block extending prev.
// Nonce and Hash are filled in by the miner.
func NewCandidateBlock(prev *Block, txs []*Transaction, miner string, difficulty int) *Block {
	if txs == nil {
		txs = []*Transaction{}
	}
	return &Block{
		Index:        prev.Index + 1,
		Timestamp:    time.Now().Unix(),
		Transactions: txs,
		PreviousHash: prev.Hash,
		Difficulty:   difficulty,
		Miner:        miner,
	}
}

// canonicalBase fixes the field order of the hashed form. Transactions are
// compacted to strings so the base is independent of JSON number formatting.
type canonicalBase struct {
	Index        int64    `json:"index"`
	Timestamp    int64    `json:"timestamp"`
	Transactions []string `json:"transactions"`
	PreviousHash string   `json:"previous_hash"`
	Difficulty   int      `json:"difficulty"`
}

// CanonicalBase returns the deterministic byte form the nonce is appended to.
// Two structurally equal blocks always produce identical bytes.
func (b *Block) CanonicalBase() []byte {
	compact := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		compact[i] = tx.compact()
	}
	data, err := json.Marshal(canonicalBase{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Transactions: compact,
		PreviousHash: b.PreviousHash,
		Difficulty:   b.Difficulty,
	})
	if err != nil {
		// Marshalling fixed struct types cannot fail at runtime.
		panic("canonical base encoding: " + err.Error())
	}
	return data
}

// PowHash computes hex(SHA-256(base ++ decimal nonce)).
func PowHash(base []byte, nonce int64) string {
	buf := make([]byte, 0, len(base)+20)
	buf = append(buf, base...)
	buf = strconv.AppendInt(buf, nonce, 10)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// ComputeHash recomputes the block hash from its canonical base and nonce.
func (b *Block) ComputeHash() string {
	return PowHash(b.CanonicalBase(), b.Nonce)
}

// hashMeetsDifficulty is the shared PoW predicate: the hex hash must carry
// at least difficulty leading zero characters.
func hashMeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(hash) {
		return false
	}
	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}

// MeetsDifficulty reports whether the stored hash satisfies the block's own
// recorded difficulty.
func (b *Block) MeetsDifficulty() bool {
	return hashMeetsDifficulty(b.Hash, b.Difficulty)
}

// IsGenesis reports whether the block is exactly the genesis constant.
func (b *Block) IsGenesis() bool {
	return b.Index == 0 &&
		b.Timestamp == 0 &&
		len(b.Transactions) == 0 &&
		b.PreviousHash == GenesisPreviousHash &&
		b.Nonce == 0 &&
		b.Difficulty == 0 &&
		b.Hash == GenesisHash &&
		b.Miner == GenesisMiner
}
