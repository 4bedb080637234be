package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// chainServer serves a fixed chain the way a peer's /chain endpoint does.
func chainServer(t *testing.T, chain []*Block) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chain" {
			http.NotFound(w, r)
			return
		}
		respondJSON(w, http.StatusOK, chainEnvelope{Length: len(chain), Chain: chain})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNormalizePeerEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"127.0.0.1:9000", "http://127.0.0.1:9000", false},
		{"http://127.0.0.1:9000/", "http://127.0.0.1:9000", false},
		{"https://peer.example.com:8443", "https://peer.example.com:8443", false},
		{"  host:1234 ", "http://host:1234", false},
		{"", "", true},
		{"ftp://host:21", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePeerEndpoint(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizePeerEndpoint(%q) accepted invalid input", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizePeerEndpoint(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestAddPeerIdempotent(t *testing.T) {
	s := NewSynchronizer(newTestLedger(t), time.Second, "")

	added, err := s.AddPeer("127.0.0.1:9000")
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = s.AddPeer("http://127.0.0.1:9000/")
	if err != nil || added {
		t.Fatalf("equivalent endpoint registered twice: added=%v err=%v", added, err)
	}
	if got := s.Peers(); len(got) != 1 || got[0] != "http://127.0.0.1:9000" {
		t.Errorf("unexpected peer set: %v", got)
	}

	if !s.RemovePeer("127.0.0.1:9000") {
		t.Error("remove of known peer reported false")
	}
	if s.RemovePeer("127.0.0.1:9000") {
		t.Error("second remove reported true")
	}
}

func TestPullAndReconcileAdoptsGloballyLongest(t *testing.T) {
	ledger := newTestLedger(t)
	s := NewSynchronizer(ledger, time.Second, "")

	shortPeer := chainServer(t, buildChain(t, 3, 1))
	longChain := buildChain(t, 5, 1)
	longPeer := chainServer(t, longChain)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	for _, peer := range []string{shortPeer.URL, longPeer.URL, deadURL} {
		if _, err := s.AddPeer(peer); err != nil {
			t.Fatalf("add peer: %v", err)
		}
	}

	report := s.PullAndReconcile(context.Background())
	if !report.Replaced {
		t.Fatalf("expected adoption, report: %+v", report)
	}
	if report.Source != longPeer.URL {
		t.Errorf("adopted from %s, want the longest peer %s", report.Source, longPeer.URL)
	}
	if ledger.Length() != 5 || ledger.Head().Hash != longChain[4].Hash {
		t.Errorf("ledger did not adopt the longest chain")
	}
	if _, ok := report.Failures[deadURL]; !ok {
		t.Errorf("unreachable peer not recorded in failures: %+v", report.Failures)
	}

	// Nothing new on the second pass.
	version := ledger.Version()
	report = s.PullAndReconcile(context.Background())
	if report.Replaced || ledger.Version() != version {
		t.Errorf("reconcile is not idempotent without new data")
	}
}

func TestPullAndReconcileRejectsInvalidChain(t *testing.T) {
	ledger := newTestLedger(t)
	s := NewSynchronizer(ledger, time.Second, "")

	forged := buildChain(t, 4, 1)
	forged[2].Transactions[0].Amount += 100
	peer := chainServer(t, forged)
	if _, err := s.AddPeer(peer.URL); err != nil {
		t.Fatalf("add peer: %v", err)
	}

	report := s.PullAndReconcile(context.Background())
	if report.Replaced {
		t.Fatal("invalid peer chain was adopted")
	}
	if ledger.Length() != 1 {
		t.Errorf("ledger mutated by invalid peer data")
	}
	if _, ok := report.Failures[peer.URL]; !ok {
		t.Errorf("invalid peer not recorded in failures")
	}
}

func TestPullAndReconcileSurvivesNullTransaction(t *testing.T) {
	ledger := newTestLedger(t)
	s := NewSynchronizer(ledger, time.Second, "")

	// A JSON null in a block's transactions array decodes to a nil entry;
	// a hostile peer must not be able to take the node down with one.
	hostile := buildChain(t, 3, 1)
	hostile[1].Transactions = append(hostile[1].Transactions, nil)
	peer := chainServer(t, hostile)
	if _, err := s.AddPeer(peer.URL); err != nil {
		t.Fatalf("add peer: %v", err)
	}

	report := s.PullAndReconcile(context.Background())
	if report.Replaced {
		t.Fatal("chain with a null transaction was adopted")
	}
	if ledger.Length() != 1 {
		t.Errorf("hostile peer data mutated the ledger")
	}
	if _, ok := report.Failures[peer.URL]; !ok {
		t.Errorf("hostile peer not recorded in failures: %+v", report.Failures)
	}
}

func TestBroadcastBlock(t *testing.T) {
	received := make(chan *Block, 1)
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blocks/receive" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var b Block
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		received <- &b
		respondJSON(w, http.StatusCreated, map[string]bool{"accepted": true})
	}))
	defer peer.Close()

	s := NewSynchronizer(newTestLedger(t), time.Second, "")
	if _, err := s.AddPeer(peer.URL); err != nil {
		t.Fatalf("add peer: %v", err)
	}

	sealed := sealNext(t, GenesisBlock(), []*Transaction{mkTx("alice", "bob", 1, 1700000000)}, "miner-1", 1)
	if delivered := s.BroadcastBlock(context.Background(), sealed); delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}

	select {
	case got := <-received:
		if got.Hash != sealed.Hash || got.Index != sealed.Index {
			t.Errorf("peer received a different block")
		}
	case <-time.After(time.Second):
		t.Fatal("peer never received the block")
	}
}
