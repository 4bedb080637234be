package main

import (
	"errors"
	"strings"
	"testing"
)

func TestNewTransactionValidation(t *testing.T) {
	tests := []struct {
		name      string
		sender    string
		recipient string
		amount    float64
		wantErr   bool
	}{
		{"valid transfer", "alice", "bob", 10, false},
		{"zero amount allowed", "alice", "bob", 0, false},
		{"empty sender", "", "bob", 10, true},
		{"empty recipient", "alice", "", 10, true},
		{"negative amount", "alice", "bob", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := NewTransaction(tt.sender, tt.recipient, tt.amount)
			if tt.wantErr {
				var malformed *MalformedTransactionError
				if !errors.As(err, &malformed) {
					t.Fatalf("expected MalformedTransactionError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(tx.ID, "0x") || len(tx.ID) != 66 {
				t.Errorf("unexpected transaction ID format: %q", tx.ID)
			}
		})
	}
}

func TestTransactionIDDeterministic(t *testing.T) {
	a := mkTx("alice", "bob", 10, 1700000000)
	b := mkTx("alice", "bob", 10, 1700000000)
	if a.ID != b.ID {
		t.Errorf("identical transactions got different IDs: %s vs %s", a.ID, b.ID)
	}

	c := mkTx("alice", "bob", 10.00000001, 1700000000)
	if a.ID == c.ID {
		t.Error("different amounts produced the same ID")
	}
}

func TestTxPool(t *testing.T) {
	pool := NewTxPool()

	first := mkTx("alice", "bob", 1, 1700000001)
	second := mkTx("bob", "carol", 2, 1700000002)
	third := mkTx("carol", "alice", 3, 1700000003)

	for _, tx := range []*Transaction{first, second, third} {
		if err := pool.Add(tx); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}
	if pool.Count() != 3 {
		t.Fatalf("expected 3 pending, got %d", pool.Count())
	}

	if err := pool.Add(mkTx("alice", "bob", 1, 1700000001)); err == nil {
		t.Error("duplicate transaction was accepted")
	}
	if err := pool.Add(&Transaction{Sender: "", Recipient: "x", Amount: 1}); err == nil {
		t.Error("malformed transaction was accepted")
	}
	if err := pool.Add(nil); err == nil {
		t.Error("nil transaction was accepted")
	}

	pending := pool.Pending(2)
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Errorf("Pending(2) did not preserve arrival order")
	}

	if removed := pool.Remove([]string{first.ID, third.ID, "0xmissing"}); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if pool.Count() != 1 || !pool.Has(second.ID) {
		t.Errorf("pool should hold only the second transaction")
	}

	rest := pool.Pending(0)
	if len(rest) != 1 || rest[0].ID != second.ID {
		t.Errorf("Pending(0) should return the full remaining pool")
	}
}
