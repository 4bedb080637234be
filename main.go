// =============================================================================
// MAIN.GO - Entry Point
// =============================================================================

package main

import (
	"flag"
	"log"
	"strings"
)

func main() {
	configPath := flag.String("config", "", "path to node config JSON")
	port := flag.Int("port", 0, "listen port (overrides config)")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	peers := flag.String("peers", "", "comma-separated bootstrap peers")
	mine := flag.Bool("mine", false, "enable background auto-mining")
	console := flag.Bool("console", false, "run the interactive operator console")
	noPersist := flag.Bool("no-persist", false, "disable the on-disk chain store")
	flag.Parse()

	cfg, err := LoadNodeConfig(*configPath)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	if *port != 0 {
		cfg.ListenPort = *port
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *peers != "" {
		for _, peer := range strings.Split(*peers, ",") {
			cfg.BootstrapPeers = append(cfg.BootstrapPeers, strings.TrimSpace(peer))
		}
	}
	if *mine {
		cfg.AutoMine = true
	}
	if *console {
		cfg.EnableConsole = true
	}
	if *noPersist {
		cfg.EnablePersist = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		log.Fatalf("❌ Node initialization failed: %v", err)
	}
	if err := node.Start(); err != nil {
		log.Fatalf("❌ Node start failed: %v", err)
	}

	if cfg.EnableConsole {
		RunConsole(node)
		node.Stop()
		return
	}

	node.WaitForShutdown()
}
