// =============================================================================
// CONSOLE.GO - Interactive Operator Console
// =============================================================================

package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pterm/pterm"
)

const (
	menuShowChain   = "Show chain"
	menuShowBalance = "Show balances"
	menuSubmitTx    = "Submit transaction"
	menuMine        = "Mine a block"
	menuAddPeer     = "Add peer"
	menuSyncNow     = "Sync with peers"
	menuAsk         = "Ask the assistant"
	menuStatus      = "Node status"
	menuQuit        = "Quit"
)

// RunConsole drives the interactive operator menu until the operator quits.
func RunConsole(node *Node) {
	pterm.DefaultHeader.WithFullWidth().Println("EmberChain Node Console")
	pterm.Info.Printfln("Node %s | miner %s | port %d",
		node.ID, node.Wallet.Address, node.Config.ListenPort)

	options := []string{
		menuShowChain, menuShowBalance, menuSubmitTx, menuMine,
		menuAddPeer, menuSyncNow, menuAsk, menuStatus, menuQuit,
	}

	for {
		choice, err := pterm.DefaultInteractiveSelect.
			WithOptions(options).
			WithDefaultText("Choose an action").
			Show()
		if err != nil {
			pterm.Error.Printfln("Console input failed: %v", err)
			return
		}

		switch choice {
		case menuShowChain:
			consoleShowChain(node)
		case menuShowBalance:
			consoleShowBalances(node)
		case menuSubmitTx:
			consoleSubmitTransaction(node)
		case menuMine:
			consoleMine(node)
		case menuAddPeer:
			consoleAddPeer(node)
		case menuSyncNow:
			consoleSync(node)
		case menuAsk:
			consoleAsk(node)
		case menuStatus:
			consoleStatus(node)
		case menuQuit:
			return
		}
	}
}

func consoleShowChain(node *Node) {
	chain := node.Ledger.Snapshot()
	for _, b := range chain {
		title := fmt.Sprintf("Block %d", b.Index)
		body := fmt.Sprintf("hash      %s\nprevious  %s\nminer     %s\nnonce     %d  difficulty %d  tx %d",
			b.Hash, b.PreviousHash, b.Miner, b.Nonce, b.Difficulty, len(b.Transactions))
		pterm.DefaultBox.WithTitle(title).Println(body)

		if len(b.Transactions) == 0 {
			continue
		}
		data := pterm.TableData{{"ID", "Sender", "Recipient", "Amount"}}
		for _, tx := range b.Transactions {
			data = append(data, []string{
				shorten(tx.ID), tx.Sender, tx.Recipient,
				strconv.FormatFloat(tx.Amount, 'f', 2, 64),
			})
		}
		pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}
	pterm.Info.Printfln("Chain length %d, head %s", len(chain), shorten(chain[len(chain)-1].Hash))
}

func consoleShowBalances(node *Node) {
	balances := node.Balances()
	if len(balances) == 0 {
		pterm.Info.Println("No participants yet")
		return
	}

	addrs := make([]string, 0, len(balances))
	for addr := range balances {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	data := pterm.TableData{{"Address", "Balance"}}
	for _, addr := range addrs {
		data = append(data, []string{addr, strconv.FormatFloat(balances[addr], 'f', 2, 64)})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func consoleSubmitTransaction(node *Node) {
	sender, _ := pterm.DefaultInteractiveTextInput.Show("Sender address")
	recipient, _ := pterm.DefaultInteractiveTextInput.Show("Recipient address")
	amountStr, _ := pterm.DefaultInteractiveTextInput.Show("Amount")

	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		pterm.Error.Printfln("Invalid amount: %v", err)
		return
	}

	tx, err := node.SubmitTransaction(sender, recipient, amount)
	if err != nil {
		pterm.Error.Printfln("Rejected: %v", err)
		return
	}
	pterm.Success.Printfln("Pending: %s (%d tx in pool)", shorten(tx.ID), node.Pool.Count())
}

func consoleMine(node *Node) {
	if node.Pool.Count() == 0 {
		pterm.Warning.Println("No pending transactions; sealing an empty block")
	}

	spinner, _ := pterm.DefaultSpinner.Start("Searching for nonce...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	block, err := node.MineOnce(ctx)
	if err != nil {
		spinner.Fail(fmt.Sprintf("Mining failed: %v", err))
		return
	}
	spinner.Success(fmt.Sprintf("Sealed block %d (nonce %d, hash %s)",
		block.Index, block.Nonce, shorten(block.Hash)))
}

func consoleAddPeer(node *Node) {
	endpoint, _ := pterm.DefaultInteractiveTextInput.Show("Peer endpoint (host:port)")
	if err := node.AddPeer(endpoint); err != nil {
		pterm.Error.Printfln("Rejected: %v", err)
		return
	}
	pterm.Success.Printfln("Peers: %v", node.Syncer.Peers())
}

func consoleSync(node *Node) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := node.SyncNow(ctx)
	if report.Replaced {
		pterm.Success.Printfln("Adopted longer chain from %s (length %d)", report.Source, report.NewLength)
	} else {
		pterm.Info.Printfln("Local chain kept (length %d, %d peers polled)", report.NewLength, report.PeersPolled)
	}
	for peer, msg := range report.Failures {
		pterm.Warning.Printfln("%s: %s", peer, msg)
	}
}

func consoleAsk(node *Node) {
	question, _ := pterm.DefaultInteractiveTextInput.Show("Question (empty for a chain summary)")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var answer string
	var err error
	if question == "" {
		answer, err = node.Assistant.SummarizeChain(ctx, node.Ledger.Snapshot())
	} else {
		answer, err = node.Assistant.Ask(ctx, question)
	}
	if err != nil {
		pterm.Error.Printfln("Assistant unavailable: %v", err)
		return
	}
	pterm.DefaultBox.WithTitle("Assistant").Println(answer)
}

func consoleStatus(node *Node) {
	status := node.Status()
	data := pterm.TableData{
		{"Node", status.NodeID},
		{"Miner", status.Miner},
		{"Engine", status.Engine},
		{"Height", strconv.FormatInt(status.Chain.Height, 10)},
		{"Blocks mined here", strconv.FormatInt(status.BlocksMined, 10)},
		{"Pending tx", strconv.Itoa(status.PendingTx)},
		{"Peers", strconv.Itoa(status.PeerCount)},
		{"Mining state", status.MiningState},
		{"Total value moved", strconv.FormatFloat(status.Chain.TotalValue, 'f', 2, 64)},
	}
	pterm.DefaultTable.WithData(data).Render()
}

func shorten(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:10] + "..." + s[len(s)-4:]
}
