package storage

import (
	"testing"

	"github.com/ecl-project/ecl/internal/ledger"
)

func TestLoadLedger_FreshDatabase(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	snap, err := store.LoadLedger()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot from a fresh database, got %+v", snap)
	}
}

func TestSaveLoadLedger(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	l := ledger.New(0)
	l.AddPending(ledger.NewTransaction("alice", 3, "task-1", nil))
	l.ConsumedTokens.Add("evidence-1")

	if err := store.SaveLedger(l.Snapshot()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := store.LoadLedger()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot")
	}

	restored := ledger.FromSnapshot(snap)
	if len(restored.Chain) != 1 {
		t.Errorf("expected 1 block, got %d", len(restored.Chain))
	}
	if restored.Tip().Hash != l.Tip().Hash {
		t.Errorf("expected tip hash %s, got %s", l.Tip().Hash, restored.Tip().Hash)
	}
	if len(restored.AwaitingValidation) != 1 {
		t.Errorf("expected 1 pending claim, got %d", len(restored.AwaitingValidation))
	}
	if !restored.ConsumedTokens.Contains("evidence-1") {
		t.Error("expected consumed token to survive the round trip")
	}
	if !restored.AuthorizedDevices.Contains(ledger.SeedSentinelID) {
		t.Error("expected the seed sentinel to survive the round trip")
	}
}

func TestSaveLedger_Overwrites(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	l := ledger.New(0)
	if err := store.SaveLedger(l.Snapshot()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.AddPending(ledger.NewTransaction("alice", 3, "task-1", nil))
	if err := store.SaveLedger(l.Snapshot()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := store.LoadLedger()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.AwaitingValidation) != 1 {
		t.Errorf("expected the later snapshot, got %d pending", len(snap.AwaitingValidation))
	}
}
