// =============================================================================
// NETWORK.GO - Peer Wire Contract & Presentation API
// =============================================================================

package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// APIServer exposes the peer wire contract and the presentation API over one
// HTTP listener. The presentation routes under /api are the only entry
// points a UI layer may call.
type APIServer struct {
	node   *Node
	server *http.Server
}

// NewAPIServer builds the router and the underlying http.Server.
func NewAPIServer(node *Node) *APIServer {
	s := &APIServer{node: node}

	addr := fmt.Sprintf("%s:%d", node.Config.ListenAddress, node.Config.ListenPort)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wired route tree with logging and panic
// recovery middleware.
func (s *APIServer) Handler() http.Handler {
	r := mux.NewRouter()

	// Peer wire contract
	r.HandleFunc("/chain", s.handleGetChain).Methods(http.MethodGet)
	r.HandleFunc("/blocks/receive", s.handleReceiveBlock).Methods(http.MethodPost)
	r.HandleFunc("/transactions/new", s.handleNewTransactions).Methods(http.MethodPost)
	r.HandleFunc("/peers/register", s.handleRegisterPeers).Methods(http.MethodPost)
	r.HandleFunc("/nodes/resolve", s.handleResolve).Methods(http.MethodGet)

	// Presentation API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/transactions", s.handleSubmitTransaction).Methods(http.MethodPost)
	api.HandleFunc("/mine", s.handleMineOnce).Methods(http.MethodPost)
	api.HandleFunc("/chain", s.handleChainSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/peers", s.handleAddPeer).Methods(http.MethodPost)
	api.HandleFunc("/peers", s.handleListPeers).Methods(http.MethodGet)
	api.HandleFunc("/sync", s.handleSyncNow).Methods(http.MethodPost)
	api.HandleFunc("/balances", s.handleBalances).Methods(http.MethodGet)
	api.HandleFunc("/address/{address}", s.handleAddress).Methods(http.MethodGet)
	api.HandleFunc("/block/{hash}", s.handleBlockByHash).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)

	// Operations
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/export/blocks.csv", s.handleExportBlocks).Methods(http.MethodGet)
	r.HandleFunc("/export/transactions.csv", s.handleExportTransactions).Methods(http.MethodGet)

	return handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, r))
}

// Start begins serving in the background.
func (s *APIServer) Start() {
	go func() {
		log.Printf("🌐 HTTP API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️  HTTP server error: %v", err)
		}
	}()
}

// Stop shuts the listener down gracefully.
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("⚠️  Response encode failed: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// =============================================================================
// PEER WIRE HANDLERS
// =============================================================================

// GET /chain - full chain for peer reconciliation.
func (s *APIServer) handleGetChain(w http.ResponseWriter, r *http.Request) {
	chain := s.node.Ledger.Snapshot()
	respondJSON(w, http.StatusOK, chainEnvelope{Length: len(chain), Chain: chain})
}

// POST /blocks/receive - fast-path adoption of a peer's newly sealed block.
// A linkage failure means we may be behind, so a reconcile pass is kicked
// off asynchronously.
func (s *APIServer) handleReceiveBlock(w http.ResponseWriter, r *http.Request) {
	var block Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode block: %w", err))
		return
	}

	if err := s.node.Ledger.Append(&block); err != nil {
		var linkage *LinkageError
		if errors.As(err, &linkage) {
			go s.node.Syncer.PullAndReconcile(context.Background())
		}
		respondError(w, http.StatusConflict, err)
		return
	}

	ids := make([]string, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = tx.ID
	}
	s.node.Pool.Remove(ids)

	log.Printf("📥 Accepted block %d from peer", block.Index)
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"accepted": true,
		"height":   block.Index,
	})
}

// POST /transactions/new - batch ingest of peer-relayed transactions.
func (s *APIServer) handleNewTransactions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Transactions []*Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode transactions: %w", err))
		return
	}

	accepted := 0
	for _, tx := range payload.Transactions {
		if err := s.node.Pool.Add(tx); err == nil {
			accepted++
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"accepted": accepted})
}

// POST /peers/register - peers announce themselves (or others) here.
func (s *APIServer) handleRegisterPeers(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Peers []string `json:"peers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode peers: %w", err))
		return
	}

	added := 0
	for _, peer := range payload.Peers {
		ok, err := s.node.Syncer.AddPeer(peer)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		if ok {
			added++
		}
	}
	s.node.persistPeers()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"added": added,
		"peers": s.node.Syncer.Peers(),
	})
}

// GET /nodes/resolve - run a reconcile pass and report the outcome.
func (s *APIServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	report := s.node.Syncer.PullAndReconcile(r.Context())
	respondJSON(w, http.StatusOK, report)
}

// =============================================================================
// PRESENTATION API HANDLERS
// =============================================================================

// POST /api/transactions - submit a new transaction.
func (s *APIServer) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Sender    string  `json:"sender"`
		Recipient string  `json:"recipient"`
		Amount    float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode transaction: %w", err))
		return
	}

	tx, err := s.node.SubmitTransaction(payload.Sender, payload.Recipient, payload.Amount)
	if err != nil {
		var malformed *MalformedTransactionError
		if errors.As(err, &malformed) {
			respondError(w, http.StatusUnprocessableEntity, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

// POST /api/mine - run a single mining attempt.
func (s *APIServer) handleMineOnce(w http.ResponseWriter, r *http.Request) {
	block, err := s.node.MineOnce(r.Context())
	if err != nil {
		var stale *StaleMiningResultError
		if errors.As(err, &stale) {
			respondError(w, http.StatusConflict, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, block)
}

// GET /api/chain - point-in-time snapshot for display.
func (s *APIServer) handleChainSnapshot(w http.ResponseWriter, r *http.Request) {
	chain := s.node.Ledger.Snapshot()
	respondJSON(w, http.StatusOK, chainEnvelope{Length: len(chain), Chain: chain})
}

// POST /api/peers - register a peer from the operator side.
func (s *APIServer) handleAddPeer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode peer: %w", err))
		return
	}

	if err := s.node.AddPeer(payload.Endpoint); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"peers": s.node.Syncer.Peers()})
}

// GET /api/peers
func (s *APIServer) handleListPeers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"peers":    s.node.Syncer.Peers(),
		"failures": s.node.Syncer.LastFailures(),
	})
}

// POST /api/sync - operator-triggered reconcile pass.
func (s *APIServer) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	report := s.node.Syncer.PullAndReconcile(r.Context())
	respondJSON(w, http.StatusOK, report)
}

// GET /api/balances
func (s *APIServer) handleBalances(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.node.Balances())
}

// GET /api/address/{address}
func (s *APIServer) handleAddress(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	balances := s.node.Balances()
	balance, known := balances[addr]

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr,
		"known":   known,
		"balance": balance,
		"history": AddressHistory(s.node.Ledger.Snapshot(), addr),
	})
}

// GET /api/block/{hash}
func (s *APIServer) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	block, err := s.node.BlockByHash(hash)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if block == nil {
		respondError(w, http.StatusNotFound, fmt.Errorf("no block with hash %s", hash))
		return
	}
	respondJSON(w, http.StatusOK, block)
}

// GET /api/stats
func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.node.Status())
}

// POST /api/ask - forward a question about the chain to the assistant.
func (s *APIServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question string `json:"question"`
		Address  string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode question: %w", err))
		return
	}

	var answer string
	var err error
	switch {
	case payload.Address != "":
		answer, err = s.node.Assistant.AuditAddress(r.Context(), payload.Address, s.node.Ledger.Snapshot())
	case payload.Question != "":
		answer, err = s.node.Assistant.Ask(r.Context(), payload.Question)
	default:
		answer, err = s.node.Assistant.SummarizeChain(r.Context(), s.node.Ledger.Snapshot())
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// GET /health
func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"node":   s.node.ID,
		"height": s.node.Ledger.Head().Index,
	})
}

// =============================================================================
// CSV EXPORT
// =============================================================================

// GET /export/blocks.csv
func (s *APIServer) handleExportBlocks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="blocks.csv"`)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write([]string{"index", "hash", "previous_hash", "timestamp", "miner", "tx_count", "nonce", "difficulty"})
	for _, b := range s.node.Ledger.Snapshot() {
		writer.Write([]string{
			strconv.FormatInt(b.Index, 10),
			b.Hash,
			b.PreviousHash,
			strconv.FormatInt(b.Timestamp, 10),
			b.Miner,
			strconv.Itoa(len(b.Transactions)),
			strconv.FormatInt(b.Nonce, 10),
			strconv.Itoa(b.Difficulty),
		})
	}
}

// GET /export/transactions.csv
func (s *APIServer) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write([]string{"id", "sender", "recipient", "amount", "timestamp", "block_index"})
	for _, b := range s.node.Ledger.Snapshot() {
		for _, tx := range b.Transactions {
			writer.Write([]string{
				tx.ID,
				tx.Sender,
				tx.Recipient,
				strconv.FormatFloat(tx.Amount, 'f', 8, 64),
				strconv.FormatInt(tx.Timestamp, 10),
				strconv.FormatInt(b.Index, 10),
			})
		}
	}
}
