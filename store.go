// =============================================================================
// STORE.GO - LevelDB Chain Store
// =============================================================================

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/syndtr/goleveldb/leveldb"
)

// Database key layout
const (
	blockPrefix     = "block:"     // block:<index> -> block JSON
	blockHashPrefix = "blockhash:" // blockhash:<hash> -> index
	chainHeightKey  = "chainheight"
	genesisHashKey  = "genesishash"
	peersKey        = "meta:peers"
	metaPrefix      = "meta:"
)

// ChainStore persists the chain and small node metadata in LevelDB.
// Writes that touch multiple keys go through a single batch.
type ChainStore struct {
	db   *leveldb.DB
	path string
}

// OpenChainStore opens (or creates) the store under dataDir.
func OpenChainStore(dataDir string) (*ChainStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := filepath.Join(dataDir, "chain.db")
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}

	// A data directory written by another network is refused before any
	// chain data is read.
	if stored, err := db.Get([]byte(genesisHashKey), nil); err == nil && string(stored) != GenesisHash {
		db.Close()
		return nil, fmt.Errorf("data directory holds a foreign chain (genesis %s)", stored)
	}

	log.Printf("💾 Chain store opened at %s", path)
	return &ChainStore{db: db, path: path}, nil
}

// Close flushes and closes the underlying database.
func (cs *ChainStore) Close() error {
	if cs.db == nil {
		return nil
	}
	return cs.db.Close()
}

// SaveBlock writes a single block and advances the height marker atomically.
func (cs *ChainStore) SaveBlock(b *Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal block %d: %w", b.Index, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(blockKey(b.Index), data)
	batch.Put([]byte(blockHashPrefix+b.Hash), []byte(strconv.FormatInt(b.Index, 10)))
	batch.Put([]byte(chainHeightKey), []byte(strconv.FormatInt(b.Index, 10)))
	if b.Index == 0 {
		batch.Put([]byte(genesisHashKey), []byte(b.Hash))
	}
	return cs.db.Write(batch, nil)
}

// SaveChain writes the whole chain in one batch, dropping the replaced
// branch's block and hash-index entries so lookups never resolve to a block
// the chain no longer holds.
func (cs *ChainStore) SaveChain(blocks []*Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("refusing to persist empty chain")
	}

	kept := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		kept[b.Hash] = struct{}{}
	}

	batch := new(leveldb.Batch)
	newHeight := blocks[len(blocks)-1].Index
	if oldHeight, err := cs.loadHeight(); err == nil {
		for i := int64(0); i <= oldHeight; i++ {
			data, err := cs.db.Get(blockKey(i), nil)
			if err != nil {
				continue
			}
			var old Block
			if json.Unmarshal(data, &old) != nil {
				continue
			}
			if _, stays := kept[old.Hash]; !stays {
				batch.Delete([]byte(blockHashPrefix + old.Hash))
			}
			if i > newHeight {
				batch.Delete(blockKey(i))
			}
		}
	}

	for _, b := range blocks {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal block %d: %w", b.Index, err)
		}
		batch.Put(blockKey(b.Index), data)
		batch.Put([]byte(blockHashPrefix+b.Hash), []byte(strconv.FormatInt(b.Index, 10)))
	}

	batch.Put([]byte(chainHeightKey), []byte(strconv.FormatInt(newHeight, 10)))
	batch.Put([]byte(genesisHashKey), []byte(blocks[0].Hash))
	return cs.db.Write(batch, nil)
}

// LoadChain reads the persisted chain. Returns (nil, nil) for a fresh store.
// The caller is responsible for revalidating before trusting the result.
func (cs *ChainStore) LoadChain() ([]*Block, error) {
	height, err := cs.loadHeight()
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chain height: %w", err)
	}

	blocks := make([]*Block, 0, height+1)
	for i := int64(0); i <= height; i++ {
		data, err := cs.db.Get(blockKey(i), nil)
		if err != nil {
			return nil, fmt.Errorf("read block %d: %w", i, err)
		}
		var b Block
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode block %d: %w", i, err)
		}
		blocks = append(blocks, &b)
	}
	return blocks, nil
}

// BlockByHash resolves a block through the hash index. Unknown hashes
// return (nil, nil).
func (cs *ChainStore) BlockByHash(hash string) (*Block, error) {
	idxData, err := cs.db.Get([]byte(blockHashPrefix+hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hash index for %s: %w", hash, err)
	}

	index, err := strconv.ParseInt(string(idxData), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt hash index entry %q: %w", idxData, err)
	}
	data, err := cs.db.Get(blockKey(index), nil)
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", index, err)
	}
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode block %d: %w", index, err)
	}
	return &b, nil
}

func (cs *ChainStore) loadHeight() (int64, error) {
	data, err := cs.db.Get([]byte(chainHeightKey), nil)
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt chain height %q: %w", data, err)
	}
	return height, nil
}

func blockKey(index int64) []byte {
	return []byte(blockPrefix + strconv.FormatInt(index, 10))
}

// =============================================================================
// PEER SET & METADATA PERSISTENCE
// =============================================================================

// SavePeers persists the known peer endpoints.
func (cs *ChainStore) SavePeers(peers []string) error {
	data, err := json.Marshal(peers)
	if err != nil {
		return fmt.Errorf("marshal peers: %w", err)
	}
	return cs.db.Put([]byte(peersKey), data, nil)
}

// LoadPeers restores the persisted peer set. Fresh stores return nil.
func (cs *ChainStore) LoadPeers() ([]string, error) {
	data, err := cs.db.Get([]byte(peersKey), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read peers: %w", err)
	}
	var peers []string
	if err := json.Unmarshal(data, &peers); err != nil {
		return nil, fmt.Errorf("decode peers: %w", err)
	}
	return peers, nil
}

// SaveMetadata stores an arbitrary small value under the metadata prefix.
func (cs *ChainStore) SaveMetadata(key, value string) error {
	return cs.db.Put([]byte(metaPrefix+key), []byte(value), nil)
}

// LoadMetadata reads a metadata value; missing keys return "".
func (cs *ChainStore) LoadMetadata(key string) (string, error) {
	data, err := cs.db.Get([]byte(metaPrefix+key), nil)
	if err == leveldb.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
