// =============================================================================
// CONFIG.GO - Node Configuration
// =============================================================================

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// NodeConfig holds every tunable of a node. Loaded from JSON, adjusted by
// environment, validated before the node starts.
type NodeConfig struct {
	ListenAddress string `json:"listen_address"`
	ListenPort    int    `json:"listen_port"`
	AdvertiseURL  string `json:"advertise_url"`

	DataDir       string `json:"data_dir"`
	EnablePersist bool   `json:"enable_persist"`

	Difficulty      int    `json:"difficulty"`
	PowEngine       string `json:"pow_engine"`
	MinTxPerBlock   int    `json:"min_tx_per_block"`
	MaxTxPerBlock   int    `json:"max_tx_per_block"`
	AutoMine        bool   `json:"auto_mine"`
	MinePollSeconds int64  `json:"mine_poll_seconds"`

	MinerAddress    string `json:"miner_address"`
	MinerPrivateKey string `json:"miner_private_key"`

	FeePerTx            float64 `json:"fee_per_tx"`
	OpeningBalance      float64 `json:"opening_balance"`
	MinerOpeningBalance float64 `json:"miner_opening_balance"`

	BootstrapPeers  []string `json:"bootstrap_peers"`
	SyncSeconds     int64    `json:"sync_seconds"`
	PeerTimeoutSecs int64    `json:"peer_timeout_seconds"`

	AssistantURL   string `json:"assistant_url"`
	AssistantModel string `json:"assistant_model"`

	EnableConsole bool `json:"enable_console"`
}

// DefaultNodeConfig returns a single-node development configuration.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		ListenAddress:       "0.0.0.0",
		ListenPort:          8080,
		DataDir:             "./emberchain-data",
		EnablePersist:       true,
		Difficulty:          4,
		PowEngine:           "turbo",
		MinTxPerBlock:       1,
		MaxTxPerBlock:       100,
		AutoMine:            false,
		MinePollSeconds:     2,
		FeePerTx:            1.0,
		OpeningBalance:      5000.0,
		MinerOpeningBalance: 50000.0,
		SyncSeconds:         30,
		PeerTimeoutSecs:     5,
		AssistantURL:        "http://127.0.0.1:11434",
		AssistantModel:      "llama3",
		EnableConsole:       false,
	}
}

// LoadNodeConfig reads a config file over the defaults, then applies
// environment overrides and validates.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cfg := DefaultNodeConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment adjust a deployed node without
// touching its config file.
func (cfg *NodeConfig) applyEnvOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.ListenPort = p
		}
	}
	if dir := os.Getenv("EMBER_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if url := os.Getenv("EMBER_ASSISTANT_URL"); url != "" {
		cfg.AssistantURL = url
	}
}

// Validate rejects configurations the node cannot run with.
func (cfg *NodeConfig) Validate() error {
	if cfg.ListenPort < 1 || cfg.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port: %d", cfg.ListenPort)
	}
	if cfg.Difficulty < 0 || cfg.Difficulty > 16 {
		return fmt.Errorf("difficulty must be between 0 and 16, got %d", cfg.Difficulty)
	}
	if cfg.PowEngine != "" && cfg.PowEngine != "reference" && cfg.PowEngine != "turbo" {
		return fmt.Errorf("unknown pow engine %q", cfg.PowEngine)
	}
	if cfg.MinTxPerBlock < 0 {
		return fmt.Errorf("min_tx_per_block cannot be negative")
	}
	if cfg.MaxTxPerBlock < 1 {
		return fmt.Errorf("max_tx_per_block must be at least 1")
	}
	if cfg.FeePerTx < 0 {
		return fmt.Errorf("fee_per_tx cannot be negative")
	}
	if cfg.EnablePersist && cfg.DataDir == "" {
		return fmt.Errorf("persistence enabled but data_dir is empty")
	}
	if cfg.MinerAddress != "" && !ValidateAddress(cfg.MinerAddress) {
		return fmt.Errorf("invalid miner address %q", cfg.MinerAddress)
	}
	for _, peer := range cfg.BootstrapPeers {
		if _, err := NormalizePeerEndpoint(peer); err != nil {
			return fmt.Errorf("invalid bootstrap peer: %w", err)
		}
	}
	return nil
}

// SaveToFile writes the configuration for later editing.
func (cfg *NodeConfig) SaveToFile(path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
