// =============================================================================
// AI.GO - Assistant Client (local chat service)
// =============================================================================

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AssistantClient talks to a local Ollama-style chat endpoint. Strictly
// read-only from the ledger's point of view: an unreachable assistant is
// reported to the caller and nothing else happens.
type AssistantClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewAssistantClient builds a client from the node configuration.
func NewAssistantClient(cfg *NodeConfig) *AssistantClient {
	return &AssistantClient{
		baseURL: strings.TrimRight(cfg.AssistantURL, "/"),
		model:   cfg.AssistantModel,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Ask sends a single prompt and returns the assistant's reply.
func (c *AssistantClient) Ask(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode assistant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode assistant response: %w", err)
	}
	return out.Message.Content, nil
}

// SummarizeChain asks for a short plain-language summary of recent blocks.
func (c *AssistantClient) SummarizeChain(ctx context.Context, blocks []*Block) (string, error) {
	const tail = 10
	start := 0
	if len(blocks) > tail {
		start = len(blocks) - tail
	}

	var sb strings.Builder
	sb.WriteString("Summarize this blockchain activity in a few sentences:\n")
	for _, b := range blocks[start:] {
		fmt.Fprintf(&sb, "block %d: %d tx, miner %s\n", b.Index, len(b.Transactions), b.Miner)
		for _, tx := range b.Transactions {
			fmt.Fprintf(&sb, "  %s -> %s: %.2f\n", tx.Sender, tx.Recipient, tx.Amount)
		}
	}
	return c.Ask(ctx, sb.String())
}

// AuditAddress asks for a plain-language audit of one address's history.
func (c *AssistantClient) AuditAddress(ctx context.Context, addr string, blocks []*Block) (string, error) {
	history := AddressHistory(blocks, addr)
	if len(history) == 0 {
		return "", fmt.Errorf("no confirmed transactions for address %s", addr)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Audit the activity of address %s given these confirmed transfers:\n", addr)
	for _, entry := range history {
		fmt.Fprintf(&sb, "block %d: %s -> %s: %.2f at %d\n",
			entry.BlockIndex, entry.Tx.Sender, entry.Tx.Recipient, entry.Tx.Amount, entry.Tx.Timestamp)
	}
	sb.WriteString("Point out anything unusual.")
	return c.Ask(ctx, sb.String())
}
