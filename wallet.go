// =============================================================================
// WALLET.GO - Miner Identity & Balance Recomputation
// =============================================================================

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil/base58"
)

// AddressPrefix marks every derived address on this network.
const AddressPrefix = "EC"

// KeyPair identifies a miner. Keys are identity only; transactions are not
// signature-verified on this network.
type KeyPair struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  *btcec.PublicKey
	Address    string
}

// GenerateKeyPair creates a fresh secp256k1 keypair with a derived address.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	pub := priv.PubKey()
	return &KeyPair{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    GenerateAddress(pub),
	}, nil
}

// ImportPrivateKey rebuilds a keypair from a hex-encoded private key.
func ImportPrivateKey(hexKey string) (*KeyPair, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key hex: %w", err)
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	return &KeyPair{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    GenerateAddress(pub),
	}, nil
}

// GenerateAddress derives a base58 address from a compressed public key.
func GenerateAddress(pub *btcec.PublicKey) string {
	sum := sha256.Sum256(pub.SerializeCompressed())
	return AddressPrefix + base58.Encode(sum[:20])
}

// ValidateAddress performs a structural check on a network address.
// GENESIS is accepted as the sentinel miner of the first block.
func ValidateAddress(addr string) bool {
	if addr == GenesisMiner {
		return true
	}
	if len(addr) < len(AddressPrefix)+20 {
		return false
	}
	if addr[:len(AddressPrefix)] != AddressPrefix {
		return false
	}
	return len(base58.Decode(addr[len(AddressPrefix):])) == 20
}

// PrivateKeyHex returns the hex form for export.
func (kp *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(kp.PrivateKey.Serialize())
}

// PublicKeyHex returns the compressed public key as hex.
func (kp *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.PublicKey.SerializeCompressed())
}

// =============================================================================
// BALANCE RECOMPUTATION
// =============================================================================

// BalancePolicy fixes the opening balances and the flat per-transaction fee
// credited to the miner of the containing block.
type BalancePolicy struct {
	OpeningBalance      float64
	MinerOpeningBalance float64
	FeePerTx            float64
}

// ComputeBalances rebuilds every balance from the chain. Balances are never
// cached across commits; the chain is the only source of truth. Addresses
// that mined at least one block open at the miner balance, all other
// participants open at the standard balance.
func ComputeBalances(blocks []*Block, policy BalancePolicy) map[string]float64 {
	miners := make(map[string]bool)
	balances := make(map[string]float64)

	open := func(addr string, isMiner bool) {
		if _, seen := balances[addr]; seen {
			return
		}
		if isMiner {
			balances[addr] = policy.MinerOpeningBalance
		} else {
			balances[addr] = policy.OpeningBalance
		}
	}

	for _, b := range blocks {
		if b.Index == 0 {
			continue
		}
		if b.Miner != "" {
			miners[b.Miner] = true
		}
	}
	for miner := range miners {
		open(miner, true)
	}

	for _, b := range blocks {
		if b.Index == 0 {
			continue
		}
		for _, tx := range b.Transactions {
			open(tx.Sender, miners[tx.Sender])
			open(tx.Recipient, miners[tx.Recipient])

			balances[tx.Sender] -= tx.Amount + policy.FeePerTx
			balances[tx.Recipient] += tx.Amount
			if b.Miner != "" {
				balances[b.Miner] += policy.FeePerTx
			}
		}
	}

	return balances
}

// AddressHistory collects every confirmed transaction touching addr along
// with the index of the block that holds it.
func AddressHistory(blocks []*Block, addr string) []AddressEntry {
	var history []AddressEntry
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			if tx.Sender == addr || tx.Recipient == addr {
				history = append(history, AddressEntry{Tx: tx, BlockIndex: b.Index})
			}
		}
	}
	return history
}

// AddressEntry pairs a confirmed transaction with its containing block.
type AddressEntry struct {
	Tx         *Transaction `json:"transaction"`
	BlockIndex int64        `json:"block_index"`
}
