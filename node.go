// =============================================================================
// NODE.GO - Node Wiring & Lifecycle
// =============================================================================

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Node wires every component of a running EmberChain instance and owns
// their lifecycle.
type Node struct {
	ID     string
	Config *NodeConfig

	Ledger    *Ledger
	Pool      *TxPool
	Engine    PowEngine
	Miner     *MiningCoordinator
	Syncer    *Synchronizer
	API       *APIServer
	Store     *ChainStore
	Wallet    *KeyPair
	Assistant *AssistantClient

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	startedAt time.Time
}

// NewNode builds a node from configuration. A persisted chain that fails
// validation (including a foreign genesis) aborts construction before any
// mining or sync can run.
func NewNode(cfg *NodeConfig) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	node := &Node{Config: cfg}

	if cfg.EnablePersist {
		store, err := OpenChainStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open chain store: %w", err)
		}
		node.Store = store
	}

	// Node identity survives restarts when a store is attached.
	node.ID = "node_" + uuid.NewString()
	if node.Store != nil {
		if saved, err := node.Store.LoadMetadata("node_id"); err == nil && saved != "" {
			node.ID = saved
		} else if err := node.Store.SaveMetadata("node_id", node.ID); err != nil {
			log.Printf("⚠️  Could not persist node ID: %v", err)
		}
	}

	ledger, err := NewLedger(node.Store)
	if err != nil {
		if node.Store != nil {
			node.Store.Close()
		}
		return nil, err
	}
	node.Ledger = ledger
	node.Pool = NewTxPool()
	node.Engine = EngineFromName(cfg.PowEngine)

	if err := node.setupWallet(); err != nil {
		return nil, err
	}

	self := cfg.AdvertiseURL
	if self == "" {
		self = fmt.Sprintf("http://127.0.0.1:%d", cfg.ListenPort)
	}
	node.Syncer = NewSynchronizer(ledger, time.Duration(cfg.PeerTimeoutSecs)*time.Second, self)
	node.restorePeers()

	node.Miner = NewMiningCoordinator(ledger, node.Pool, node.Engine, node.Syncer, cfg,
		node.Wallet.Address, func(b *Block) {
			go node.Syncer.BroadcastBlock(context.Background(), b)
		})

	node.Assistant = NewAssistantClient(cfg)
	node.API = NewAPIServer(node)

	log.Printf("🚀 Node %s initialized (miner %s, engine %s)", node.ID, node.Wallet.Address, node.Engine.Name())
	return node, nil
}

// setupWallet imports the configured miner key or generates a fresh one.
func (n *Node) setupWallet() error {
	switch {
	case n.Config.MinerPrivateKey != "":
		kp, err := ImportPrivateKey(n.Config.MinerPrivateKey)
		if err != nil {
			return fmt.Errorf("import miner key: %w", err)
		}
		n.Wallet = kp
	case n.Config.MinerAddress != "":
		// Address-only identity: mine on behalf of a configured address.
		n.Wallet = &KeyPair{Address: n.Config.MinerAddress}
	default:
		kp, err := GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("generate miner key: %w", err)
		}
		n.Wallet = kp
		log.Printf("🔑 Generated miner wallet %s", kp.Address)
	}
	return nil
}

// restorePeers merges persisted peers with the configured bootstrap set.
func (n *Node) restorePeers() {
	if n.Store != nil {
		if saved, err := n.Store.LoadPeers(); err == nil {
			for _, peer := range saved {
				n.Syncer.AddPeer(peer)
			}
		} else {
			log.Printf("⚠️  Could not restore peers: %v", err)
		}
	}
	for _, peer := range n.Config.BootstrapPeers {
		if _, err := n.Syncer.AddPeer(peer); err != nil {
			log.Printf("⚠️  Skipping bootstrap peer: %v", err)
		}
	}
}

// persistPeers writes the current peer set through the store.
func (n *Node) persistPeers() {
	if n.Store == nil {
		return
	}
	if err := n.Store.SavePeers(n.Syncer.Peers()); err != nil {
		log.Printf("⚠️  Could not persist peers: %v", err)
	}
}

// Start launches the HTTP API and the background loops.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("node already running")
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.running = true
	n.startedAt = time.Now()

	n.API.Start()

	go func() {
		n.Syncer.Announce(n.ctx)
		n.Syncer.PullAndReconcile(n.ctx)
	}()
	go n.syncLoop()

	if n.Config.AutoMine {
		go n.Miner.Run(n.ctx)
	}

	log.Printf("✅ Node %s started on port %d", n.ID, n.Config.ListenPort)
	return nil
}

// syncLoop periodically reconciles with peers and persists the peer set.
func (n *Node) syncLoop() {
	interval := time.Duration(n.Config.SyncSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if len(n.Syncer.Peers()) == 0 {
				continue
			}
			report := n.Syncer.PullAndReconcile(n.ctx)
			if report.Replaced {
				log.Printf("🔄 Background sync adopted chain from %s", report.Source)
			}
			n.persistPeers()
		}
	}
}

// Stop shuts everything down in order: background loops, HTTP, store.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return
	}
	log.Printf("🛑 Stopping node %s...", n.ID)

	n.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.API.Stop(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}

	n.persistPeers()
	if n.Store != nil {
		if err := n.Store.Close(); err != nil {
			log.Printf("⚠️  Store close: %v", err)
		}
	}

	n.running = false
	log.Printf("✅ Node stopped")
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then stops the node.
func (n *Node) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v", sig)
	n.Stop()
}

// =============================================================================
// OPERATIONS
// =============================================================================

// SubmitTransaction validates and pools a new transaction, then shares it
// with peers in the background.
func (n *Node) SubmitTransaction(sender, recipient string, amount float64) (*Transaction, error) {
	tx, err := NewTransaction(sender, recipient, amount)
	if err != nil {
		return nil, err
	}
	if err := n.Pool.Add(tx); err != nil {
		return nil, err
	}

	go n.Syncer.BroadcastTransactions(context.Background(), []*Transaction{tx})
	return tx, nil
}

// MineOnce runs a single mining attempt and broadcasts the sealed block.
func (n *Node) MineOnce(ctx context.Context) (*Block, error) {
	return n.Miner.MineOnce(ctx)
}

// AddPeer registers a peer, persists the set and announces ourselves.
func (n *Node) AddPeer(endpoint string) error {
	added, err := n.Syncer.AddPeer(endpoint)
	if err != nil {
		return err
	}
	if added {
		n.persistPeers()
		go n.Syncer.Announce(context.Background())
	}
	return nil
}

// SyncNow runs one reconcile pass.
func (n *Node) SyncNow(ctx context.Context) *SyncReport {
	return n.Syncer.PullAndReconcile(ctx)
}

// BlockByHash resolves a confirmed block by its hash, through the store's
// hash index when one is attached. Unknown hashes return (nil, nil).
func (n *Node) BlockByHash(hash string) (*Block, error) {
	if n.Store != nil {
		return n.Store.BlockByHash(hash)
	}
	for _, b := range n.Ledger.Snapshot() {
		if b.Hash == hash {
			return b, nil
		}
	}
	return nil, nil
}

// Balances recomputes every balance from the current chain.
func (n *Node) Balances() map[string]float64 {
	return ComputeBalances(n.Ledger.Snapshot(), BalancePolicy{
		OpeningBalance:      n.Config.OpeningBalance,
		MinerOpeningBalance: n.Config.MinerOpeningBalance,
		FeePerTx:            n.Config.FeePerTx,
	})
}

// NodeStatus is the operational summary served by /api/stats.
type NodeStatus struct {
	NodeID      string     `json:"node_id"`
	Miner       string     `json:"miner"`
	Engine      string     `json:"engine"`
	UptimeSecs  int64      `json:"uptime_seconds"`
	PendingTx   int        `json:"pending_tx"`
	PeerCount   int        `json:"peer_count"`
	MiningState string     `json:"mining_state"`
	BlocksMined int64      `json:"blocks_mined"`
	Chain       ChainStats `json:"chain"`
}

// Status gathers the operational summary.
func (n *Node) Status() NodeStatus {
	return NodeStatus{
		NodeID:      n.ID,
		Miner:       n.Wallet.Address,
		Engine:      n.Engine.Name(),
		UptimeSecs:  int64(time.Since(n.startedAt).Seconds()),
		PendingTx:   n.Pool.Count(),
		PeerCount:   len(n.Syncer.Peers()),
		MiningState: n.Miner.State().String(),
		BlocksMined: n.Miner.BlocksMined(),
		Chain:       n.Ledger.Stats(n.Config.FeePerTx),
	}
}
