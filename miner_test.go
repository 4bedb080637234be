package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newMinerFixture(t *testing.T, engine PowEngine) (*MiningCoordinator, *Ledger, *TxPool) {
	t.Helper()

	cfg := DefaultNodeConfig()
	cfg.Difficulty = 1
	cfg.MaxTxPerBlock = 10

	ledger := newTestLedger(t)
	pool := NewTxPool()
	mc := NewMiningCoordinator(ledger, pool, engine, nil, cfg, "miner-1", nil)
	return mc, ledger, pool
}

func TestMineOnceSealsAndCommits(t *testing.T) {
	mc, ledger, pool := newMinerFixture(t, &ReferenceEngine{})

	tx := mkTx("alice", "bob", 10, 1700000000)
	if err := pool.Add(tx); err != nil {
		t.Fatalf("pool add: %v", err)
	}

	block, err := mc.MineOnce(context.Background())
	if err != nil {
		t.Fatalf("mine once: %v", err)
	}

	if ledger.Length() != 2 || ledger.Head().Hash != block.Hash {
		t.Errorf("sealed block is not the new head")
	}
	if len(block.Transactions) != 1 || block.Transactions[0].ID != tx.ID {
		t.Errorf("sealed block does not carry the pending transaction")
	}
	if !block.MeetsDifficulty() {
		t.Errorf("sealed block fails its own difficulty")
	}
	if block.Miner != "miner-1" {
		t.Errorf("sealed block credits miner %q", block.Miner)
	}
	if pool.Count() != 0 {
		t.Errorf("mined transactions were not removed from the pool")
	}
	if mc.State() != MineIdle {
		t.Errorf("coordinator should return to idle, state is %s", mc.State())
	}
	if mc.BlocksMined() != 1 {
		t.Errorf("blocks-mined counter not incremented")
	}
}

func TestMineOnceCancellation(t *testing.T) {
	mc, ledger, _ := newMinerFixture(t, &ReferenceEngine{})
	mc.cfg.Difficulty = 16

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := mc.MineOnce(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled mining attempt did not return")
	}

	if ledger.Length() != 1 {
		t.Errorf("cancelled attempt mutated the chain")
	}
	if mc.State() != MineCancelled {
		t.Errorf("expected cancelled state, got %s", mc.State())
	}
}

// cancelOnceEngine blocks its first search until the search context is
// cancelled, then delegates every later search to the real engine. Lets a
// test hold the auto-miner mid-search deterministically.
type cancelOnceEngine struct {
	mu           sync.Mutex
	attempts     int
	firstStarted chan struct{}
	inner        PowEngine
}

func (e *cancelOnceEngine) Name() string { return "cancel-once" }

func (e *cancelOnceEngine) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

func (e *cancelOnceEngine) Mine(ctx context.Context, base []byte, difficulty int) (int64, string, error) {
	e.mu.Lock()
	e.attempts++
	first := e.attempts == 1
	e.mu.Unlock()

	if first {
		close(e.firstStarted)
		<-ctx.Done()
		return 0, "", ctx.Err()
	}
	return e.inner.Mine(ctx, base, difficulty)
}

func TestRunCancelsSearchOnCompetingCommit(t *testing.T) {
	engine := &cancelOnceEngine{
		firstStarted: make(chan struct{}),
		inner:        &ReferenceEngine{},
	}
	mc, ledger, pool := newMinerFixture(t, engine)
	mc.cfg.MinTxPerBlock = 1
	mc.cfg.MinePollSeconds = 1

	tx := mkTx("alice", "bob", 10, 1700000000)
	if err := pool.Add(tx); err != nil {
		t.Fatalf("pool add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mc.Run(ctx)

	// The loop assembles on genesis and parks in the first search.
	select {
	case <-engine.firstStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("auto-miner never started searching")
	}

	// A peer block lands; the head-change watcher must cancel the search.
	competing := sealNext(t, ledger.Head(), nil, "miner-2", 1)
	if err := ledger.Append(competing); err != nil {
		t.Fatalf("competing append: %v", err)
	}

	// The loop reassembles on the new head and seals the pending transaction.
	deadline := time.After(10 * time.Second)
	for ledger.Length() < 3 {
		select {
		case <-deadline:
			t.Fatal("auto-miner never sealed on the new head")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	head := ledger.Head()
	if head.PreviousHash != competing.Hash {
		t.Errorf("resealed block extends %s, want the competing head %s", head.PreviousHash, competing.Hash)
	}
	if len(head.Transactions) != 1 || head.Transactions[0].ID != tx.ID {
		t.Errorf("resealed block does not carry the pending transaction")
	}
	if pool.Count() != 0 {
		t.Errorf("pool not drained after the resealed commit")
	}
	if engine.Attempts() < 2 {
		t.Errorf("expected a cancelled first attempt and a second search, got %d attempts", engine.Attempts())
	}
}

// gateEngine holds the nonce search until released, so a competing commit
// can land mid-search deterministically.
type gateEngine struct {
	started chan struct{}
	release chan struct{}
	inner   PowEngine
}

func (g *gateEngine) Name() string { return "gate" }

func (g *gateEngine) Mine(ctx context.Context, base []byte, difficulty int) (int64, string, error) {
	close(g.started)
	<-g.release
	return g.inner.Mine(ctx, base, difficulty)
}

func TestMineOnceRejectsStaleResult(t *testing.T) {
	gate := &gateEngine{
		started: make(chan struct{}),
		release: make(chan struct{}),
		inner:   &ReferenceEngine{},
	}
	mc, ledger, pool := newMinerFixture(t, gate)

	if err := pool.Add(mkTx("alice", "bob", 10, 1700000000)); err != nil {
		t.Fatalf("pool add: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := mc.MineOnce(context.Background())
		done <- err
	}()

	<-gate.started

	// A peer block lands while the local search is still running.
	competing := sealNext(t, ledger.Head(), nil, "miner-2", 1)
	if err := ledger.Append(competing); err != nil {
		t.Fatalf("competing append: %v", err)
	}

	close(gate.release)

	var stale *StaleMiningResultError
	select {
	case err := <-done:
		if !errors.As(err, &stale) {
			t.Fatalf("expected StaleMiningResultError, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("mining attempt did not return")
	}

	if ledger.Length() != 2 || ledger.Head().Hash != competing.Hash {
		t.Errorf("stale result moved the head")
	}
	if mc.State() != MineRejected {
		t.Errorf("expected rejected state, got %s", mc.State())
	}
	if pool.Count() != 1 {
		t.Errorf("stale attempt drained the pool")
	}
}
