// =============================================================================
// MINER.GO - Mining Coordinator & Auto-Miner Loop
// =============================================================================

package main

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// MineState tracks where a mining attempt currently is.
type MineState int32

const (
	MineIdle MineState = iota
	MineAssembling
	MineSearching
	MineCommitting
	MineCancelled
	MineRejected
)

func (s MineState) String() string {
	switch s {
	case MineIdle:
		return "idle"
	case MineAssembling:
		return "assembling"
	case MineSearching:
		return "searching"
	case MineCommitting:
		return "committing"
	case MineCancelled:
		return "cancelled"
	case MineRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MiningCoordinator runs mining attempts against the ledger. Each attempt
// snapshots the pool and the head, searches on its own goroutine, and
// re-checks the ledger version before committing so a result built on a
// superseded head is discarded rather than appended.
type MiningCoordinator struct {
	ledger *Ledger
	pool   *TxPool
	engine PowEngine
	syncer *Synchronizer
	cfg    *NodeConfig

	minerAddr string
	state     atomic.Int32
	onSealed  func(*Block)

	blocksMined atomic.Int64
}

// NewMiningCoordinator wires a coordinator. onSealed, when set, is invoked
// after every successful commit (used for broadcast); it may be nil.
func NewMiningCoordinator(ledger *Ledger, pool *TxPool, engine PowEngine, syncer *Synchronizer, cfg *NodeConfig, minerAddr string, onSealed func(*Block)) *MiningCoordinator {
	return &MiningCoordinator{
		ledger:    ledger,
		pool:      pool,
		engine:    engine,
		syncer:    syncer,
		cfg:       cfg,
		minerAddr: minerAddr,
		onSealed:  onSealed,
	}
}

// State returns the state of the current or most recent attempt.
func (mc *MiningCoordinator) State() MineState {
	return MineState(mc.state.Load())
}

// BlocksMined returns how many blocks this coordinator has committed.
func (mc *MiningCoordinator) BlocksMined() int64 {
	return mc.blocksMined.Load()
}

func (mc *MiningCoordinator) setState(s MineState) {
	mc.state.Store(int32(s))
}

// MineOnce runs a single attempt: assemble a candidate from the pending pool
// and the current head, search for the nonce, then commit. If any competing
// commit landed during the search, the result is dropped with
// StaleMiningResultError and the head is left untouched.
func (mc *MiningCoordinator) MineOnce(ctx context.Context) (*Block, error) {
	mc.setState(MineAssembling)

	head, version := mc.ledger.HeadVersion()
	txs := mc.pool.Pending(mc.cfg.MaxTxPerBlock)
	candidate := NewCandidateBlock(head, txs, mc.minerAddr, mc.cfg.Difficulty)
	base := candidate.CanonicalBase()

	mc.setState(MineSearching)
	started := time.Now()
	nonce, hash, err := mc.engine.Mine(ctx, base, candidate.Difficulty)
	if err != nil {
		mc.setState(MineCancelled)
		return nil, err
	}
	candidate.Nonce = nonce
	candidate.Hash = hash

	mc.setState(MineCommitting)
	if err := mc.ledger.AppendIfVersion(candidate, version); err != nil {
		mc.setState(MineRejected)
		return nil, err
	}

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	mc.pool.Remove(ids)
	mc.blocksMined.Add(1)

	log.Printf("⛏️  Sealed block %d with %d tx (nonce %d, %s engine, %v)",
		candidate.Index, len(txs), nonce, mc.engine.Name(), time.Since(started).Round(time.Millisecond))

	if mc.onSealed != nil {
		mc.onSealed(candidate)
	}

	mc.setState(MineIdle)
	return candidate, nil
}

// Run is the background auto-miner: reconcile with peers, mine when enough
// transactions are pending, repeat. An in-flight search is cancelled as soon
// as a competing commit moves the head; the next pass reassembles from the
// new head.
func (mc *MiningCoordinator) Run(ctx context.Context) {
	log.Printf("⛏️  Auto-miner started (difficulty %d, min %d tx per block)",
		mc.cfg.Difficulty, mc.cfg.MinTxPerBlock)

	interval := time.Duration(mc.cfg.MinePollSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("⛏️  Auto-miner stopped")
			return
		default:
		}

		if mc.syncer != nil && len(mc.syncer.Peers()) > 0 {
			mc.syncer.PullAndReconcile(ctx)
		}

		if mc.pool.Count() < mc.cfg.MinTxPerBlock {
			mc.setState(MineIdle)
			if !sleepCtx(ctx, interval) {
				return
			}
			continue
		}

		searchCtx, cancel := context.WithCancel(ctx)
		headCh := mc.ledger.WaitHeadChange()
		go func() {
			select {
			case <-headCh:
				cancel()
			case <-searchCtx.Done():
			}
		}()

		_, err := mc.MineOnce(searchCtx)
		cancel()

		switch {
		case err == nil:
			// Sealed and committed; onSealed handled broadcast.
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
			log.Printf("⛏️  Search abandoned, head moved; reassembling")
			continue
		case ctx.Err() != nil:
			log.Printf("⛏️  Auto-miner stopped")
			return
		default:
			var stale *StaleMiningResultError
			if errors.As(err, &stale) {
				log.Printf("⛏️  Discarded stale result built on %s", stale.BuiltOn)
				continue
			}
			log.Printf("⚠️  Mining attempt failed: %v", err)
		}

		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

// sleepCtx waits for d, returning false if ctx finished first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
