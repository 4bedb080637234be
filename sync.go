// =============================================================================
// SYNC.GO - Peer Registry, Broadcast & Pull-and-Reconcile
// =============================================================================

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// chainEnvelope is the wire form of a full chain response.
type chainEnvelope struct {
	Length int      `json:"length"`
	Chain  []*Block `json:"chain"`
}

// SyncReport summarizes one pull-and-reconcile pass.
type SyncReport struct {
	PeersPolled int               `json:"peers_polled"`
	Replaced    bool              `json:"replaced"`
	Source      string            `json:"source,omitempty"`
	NewLength   int               `json:"new_length"`
	Failures    map[string]string `json:"failures,omitempty"`
}

// Synchronizer keeps the peer set and moves chain data between nodes.
// Peer failures are recorded, never fatal.
type Synchronizer struct {
	mu       sync.RWMutex
	peers    map[string]struct{}
	lastErrs map[string]string

	ledger *Ledger
	client *http.Client
	self   string
}

// NewSynchronizer builds a synchronizer with a per-request timeout.
// self is this node's own advertised endpoint, skipped during registration.
func NewSynchronizer(ledger *Ledger, timeout time.Duration, self string) *Synchronizer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Synchronizer{
		peers:    make(map[string]struct{}),
		lastErrs: make(map[string]string),
		ledger:   ledger,
		client:   &http.Client{Timeout: timeout},
		self:     self,
	}
}

// NormalizePeerEndpoint canonicalizes a peer address to http://host:port.
func NormalizePeerEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty peer endpoint")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse peer endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported peer scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("peer endpoint %q has no host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// AddPeer registers a peer endpoint. Idempotent; returns true when new.
func (s *Synchronizer) AddPeer(raw string) (bool, error) {
	endpoint, err := NormalizePeerEndpoint(raw)
	if err != nil {
		return false, err
	}
	if endpoint == s.self {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.peers[endpoint]; exists {
		return false, nil
	}
	s.peers[endpoint] = struct{}{}
	log.Printf("🌐 Peer registered: %s (%d total)", endpoint, len(s.peers))
	return true, nil
}

// RemovePeer drops a peer. Idempotent.
func (s *Synchronizer) RemovePeer(raw string) bool {
	endpoint, err := NormalizePeerEndpoint(raw)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.peers[endpoint]; !exists {
		return false
	}
	delete(s.peers, endpoint)
	delete(s.lastErrs, endpoint)
	return true
}

// Peers returns the sorted peer set.
func (s *Synchronizer) Peers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// LastFailures returns the most recent per-peer failure messages.
func (s *Synchronizer) LastFailures() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.lastErrs))
	for k, v := range s.lastErrs {
		out[k] = v
	}
	return out
}

func (s *Synchronizer) recordFailure(endpoint, msg string) {
	s.mu.Lock()
	s.lastErrs[endpoint] = msg
	s.mu.Unlock()
}

func (s *Synchronizer) clearFailure(endpoint string) {
	s.mu.Lock()
	delete(s.lastErrs, endpoint)
	s.mu.Unlock()
}

// =============================================================================
// CHAIN PULL & RECONCILE
// =============================================================================

// fetchChain pulls a peer's full chain. Transport and decode failures come
// back as PeerUnreachableError.
func (s *Synchronizer) fetchChain(ctx context.Context, endpoint string) ([]*Block, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/chain", nil)
	if err != nil {
		return nil, &PeerUnreachableError{Endpoint: endpoint, Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &PeerUnreachableError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &PeerUnreachableError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var envelope chainEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &PeerUnreachableError{Endpoint: endpoint, Err: fmt.Errorf("decode chain: %w", err)}
	}
	return envelope.Chain, nil
}

// PullAndReconcile fetches every peer's chain, validates each locally and
// adopts the globally longest valid chain of the pass when it is strictly
// longer than ours. Unreachable, invalid and not-longer peers are skipped
// per peer. Idempotent when no peer has new data.
func (s *Synchronizer) PullAndReconcile(ctx context.Context) *SyncReport {
	report := &SyncReport{Failures: make(map[string]string)}

	peers := s.Peers()
	report.PeersPolled = len(peers)
	localLen := s.ledger.Length()

	var bestChain []*Block
	var bestPeer string

	for _, peer := range peers {
		chain, err := s.fetchChain(ctx, peer)
		if err != nil {
			report.Failures[peer] = err.Error()
			s.recordFailure(peer, err.Error())
			continue
		}
		s.clearFailure(peer)

		if len(chain) <= localLen || len(chain) <= len(bestChain) {
			continue
		}
		if err := ValidateChain(chain); err != nil {
			report.Failures[peer] = err.Error()
			s.recordFailure(peer, err.Error())
			continue
		}
		bestChain = chain
		bestPeer = peer
	}

	if bestChain != nil {
		if err := s.ledger.Replace(bestChain); err != nil {
			report.Failures[bestPeer] = err.Error()
		} else {
			report.Replaced = true
			report.Source = bestPeer
			log.Printf("🔄 Adopted chain from %s (length %d -> %d)", bestPeer, localLen, len(bestChain))
		}
	}

	report.NewLength = s.ledger.Length()
	return report
}

// =============================================================================
// BROADCAST
// =============================================================================

// BroadcastBlock fans a newly sealed block out to every peer concurrently.
// Best effort; returns how many peers accepted delivery.
func (s *Synchronizer) BroadcastBlock(ctx context.Context, b *Block) int {
	peers := s.Peers()
	if len(peers) == 0 {
		return 0
	}

	payload, err := json.Marshal(b)
	if err != nil {
		log.Printf("⚠️  Broadcast encode failed for block %d: %v", b.Index, err)
		return 0
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0

	for _, peer := range peers {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			if err := s.postJSON(ctx, endpoint+"/blocks/receive", payload); err != nil {
				s.recordFailure(endpoint, err.Error())
				return
			}
			s.clearFailure(endpoint)
			mu.Lock()
			delivered++
			mu.Unlock()
		}(peer)
	}
	wg.Wait()

	log.Printf("📡 Block %d broadcast to %d/%d peers", b.Index, delivered, len(peers))
	return delivered
}

// BroadcastTransactions shares pending transactions with every peer.
func (s *Synchronizer) BroadcastTransactions(ctx context.Context, txs []*Transaction) int {
	peers := s.Peers()
	if len(peers) == 0 || len(txs) == 0 {
		return 0
	}

	payload, err := json.Marshal(map[string][]*Transaction{"transactions": txs})
	if err != nil {
		return 0
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0

	for _, peer := range peers {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			if err := s.postJSON(ctx, endpoint+"/transactions/new", payload); err != nil {
				s.recordFailure(endpoint, err.Error())
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(peer)
	}
	wg.Wait()
	return delivered
}

// Announce registers this node's endpoint with every known peer.
func (s *Synchronizer) Announce(ctx context.Context) {
	if s.self == "" {
		return
	}
	payload, err := json.Marshal(map[string][]string{"peers": {s.self}})
	if err != nil {
		return
	}
	for _, peer := range s.Peers() {
		if err := s.postJSON(ctx, peer+"/peers/register", payload); err != nil {
			s.recordFailure(peer, err.Error())
		}
	}
}

func (s *Synchronizer) postJSON(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
