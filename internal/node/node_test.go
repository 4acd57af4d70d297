package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ecl-project/ecl/internal/claims"
	"github.com/ecl-project/ecl/internal/compliance"
	"github.com/ecl-project/ecl/internal/ledger"
	"github.com/ecl-project/ecl/internal/peersync"
	"github.com/ecl-project/ecl/internal/sentinel"
	"github.com/ecl-project/ecl/internal/storage"
	"github.com/ecl-project/ecl/internal/wallet"
	"github.com/ecl-project/ecl/pkg/errors"
	"github.com/ecl-project/ecl/pkg/log"
)

type recordingBroadcaster struct {
	mu        sync.Mutex
	envelopes []*peersync.Envelope
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, env *peersync.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelopes = append(b.envelopes, env)
	return nil
}

func (b *recordingBroadcaster) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, env := range b.envelopes {
		out = append(out, env.Kind)
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) PublishEvent(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func newTestNode(t *testing.T) (*Node, *recordingBroadcaster, *wallet.MemoryStore) {
	t.Helper()
	broadcaster := &recordingBroadcaster{}
	store := wallet.NewMemoryStore()
	n := New(Deps{
		NodeID:      "node-a",
		Ledger:      ledger.New(0),
		Wallets:     store,
		Broadcaster: broadcaster,
		Logger:      log.New("test", "0.0.0", "error", "text"),
	})
	return n, broadcaster, store
}

func fundWallet(t *testing.T, store *wallet.MemoryStore, address string, balance uint64) {
	t.Helper()
	if err := store.Put(context.Background(), &wallet.Wallet{Address: address, Balance: balance}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func passingProof(t *testing.T) json.RawMessage {
	t.Helper()
	for i := 0; i < 4096; i++ {
		token := fmt.Sprintf("node-evidence-%d", i)
		if compliance.Score(token, claims.KindTreePlanting) >= compliance.PhotoEvidenceThreshold {
			raw, err := claims.Marshal(claims.TreePlanting{Count: 3, Evidence: token})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			return raw
		}
	}
	t.Fatal("no passing token found")
	return nil
}

func TestCreateWallet(t *testing.T) {
	n, _, _ := newTestNode(t)

	gen, err := n.CreateWallet(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Wallet.Balance != wallet.InitialBalance {
		t.Errorf("expected initial balance %d, got %d", wallet.InitialBalance, gen.Wallet.Balance)
	}

	wallets, err := n.Balances(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wallets) != 1 {
		t.Errorf("expected 1 stored wallet, got %d", len(wallets))
	}
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	n, broadcaster, store := newTestNode(t)
	fundWallet(t, store, "alice", 10)

	tx, err := n.SubmitClaim(ctx, "alice", "task-1", passingProof(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Amount != 3 {
		t.Errorf("expected reward 3, got %d", tx.Amount)
	}

	results := n.RunValidationPass(ctx)
	if len(results) != 1 || results[0].Status != ledger.StatusValidated {
		t.Fatalf("unexpected results: %+v", results)
	}

	block, err := n.Mine(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block.Index != 1 {
		t.Errorf("expected block index 1, got %d", block.Index)
	}

	w, _ := store.Get(ctx, "alice")
	if w.Balance != 13 {
		t.Errorf("expected balance 13, got %d", w.Balance)
	}

	kinds := broadcaster.kinds()
	expected := []string{peersync.KindTask, peersync.KindValidationResult, peersync.KindBlock}
	if len(kinds) != len(expected) {
		t.Fatalf("expected %d broadcasts, got %v", len(expected), kinds)
	}
	for i, kind := range expected {
		if kinds[i] != kind {
			t.Errorf("expected broadcast %d to be %s, got %s", i, kind, kinds[i])
		}
	}
}

func TestSubmitClaim_RejectedNotBroadcast(t *testing.T) {
	ctx := context.Background()
	n, broadcaster, _ := newTestNode(t)

	_, err := n.SubmitClaim(ctx, "ghost", "task-1", passingProof(t))
	if !errors.IsCode(err, errors.CodeWalletNotFound) {
		t.Fatalf("expected code %s, got %v", errors.CodeWalletNotFound, err)
	}
	if len(broadcaster.kinds()) != 0 {
		t.Error("expected no broadcast for a failed submission")
	}
}

func TestHandlePeerMessage_Task(t *testing.T) {
	ctx := context.Background()
	n, _, _ := newTestNode(t)

	env := peersync.NewTaskEnvelope("node-b", ledger.NewTransaction("peer-wallet", 3, "task-p1", nil))
	if err := n.HandlePeerMessage(ctx, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, _ := n.PendingPools()
	if len(pending) != 1 {
		t.Errorf("expected 1 pooled peer claim, got %d", len(pending))
	}
}

func TestHandlePeerMessage_OwnEcho(t *testing.T) {
	ctx := context.Background()
	n, _, _ := newTestNode(t)

	env := peersync.NewTaskEnvelope("node-a", ledger.NewTransaction("w", 3, "task-1", nil))
	if err := n.HandlePeerMessage(ctx, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, _ := n.PendingPools()
	if len(pending) != 0 {
		t.Error("expected own echo to be ignored")
	}
}

func TestHandlePeerMessage_BlockEvent(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	store := wallet.NewMemoryStore()
	l := ledger.New(0)
	n := New(Deps{
		NodeID:  "node-a",
		Ledger:  l,
		Wallets: store,
		Events:  sink,
		Logger:  log.New("test", "0.0.0", "error", "text"),
	})

	tip := l.Tip()
	block := ledger.NewBlock(tip.Index+1, nil, tip.Hash)
	if err := n.HandlePeerMessage(ctx, peersync.NewBlockEnvelope("node-b", block)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(n.ChainSnapshot()) != 2 {
		t.Fatalf("expected chain length 2")
	}
	if len(sink.events) != 1 || sink.events[0].Kind != EventBlockReceived {
		t.Errorf("expected a block_received event, got %+v", sink.events)
	}

	// A stale redelivery must not publish another event
	if err := n.HandlePeerMessage(ctx, peersync.NewBlockEnvelope("node-b", block)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.events) != 1 {
		t.Errorf("expected no event for a discarded block, got %d events", len(sink.events))
	}
}

func TestHandleSentinelPacket(t *testing.T) {
	ctx := context.Background()
	n, _, store := newTestNode(t)
	fundWallet(t, store, "operator", 10)

	packet := &sentinel.Packet{
		SentinelID: ledger.SeedSentinelID,
		Wallet:     "operator",
		TaskID:     "cc-001",
		Proof:      json.RawMessage(`{"type":"carbon_capture","sentinel_id":"ecl-sentinel-01","tons_captured":12,"hardware_signature":"sig-cc42"}`),
	}
	if err := n.HandleSentinelPacket(ctx, packet); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, _ := n.PendingPools()
	if len(pending) != 1 || pending[0].Task != "cc-001" {
		t.Errorf("unexpected pending pool: %+v", pending)
	}
}

func TestAuthorizeDevice(t *testing.T) {
	ctx := context.Background()
	n, _, store := newTestNode(t)
	fundWallet(t, store, "alice", 10)
	n.AuthorizeDevice("aqi-dev-9")

	// A claim from the newly authorized device now clears the origin rule
	var token string
	for i := 0; i < 4096; i++ {
		candidate := fmt.Sprintf("aqi-sig-%d", i)
		if compliance.Score(candidate, claims.KindAQIData) >= compliance.HardwareEvidenceThreshold {
			token = candidate
			break
		}
	}
	if token == "" {
		t.Fatal("no passing token found")
	}

	raw, err := claims.Marshal(claims.AQIData{DeviceID: "aqi-dev-9", PM25: 80, HardwareSignature: token})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := n.SubmitClaim(ctx, "alice", "task-aqi", raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := n.RunValidationPass(ctx)
	if results[0].Status != ledger.StatusValidated {
		t.Errorf("expected validation, got %s: %s", results[0].Status, results[0].Reason)
	}
}

func TestPersistAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wallets := wallet.NewMemoryStore()
	fundWallet(t, wallets, "alice", 10)

	n := New(Deps{
		NodeID:  "node-a",
		Ledger:  ledger.New(0),
		Wallets: wallets,
		Store:   store,
		Logger:  log.New("test", "0.0.0", "error", "text"),
	})

	if _, err := n.SubmitClaim(ctx, "alice", "task-1", passingProof(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n.RunValidationPass(ctx)
	if _, err := n.Mine(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tipHash := n.ChainSnapshot()[1].Hash
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Reopen and restore
	store2, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store2.Close()

	snap, err := store2.LoadLedger()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a persisted snapshot")
	}

	restored := ledger.FromSnapshot(snap)
	if len(restored.Chain) != 2 {
		t.Fatalf("expected 2 blocks after restore, got %d", len(restored.Chain))
	}
	if restored.Tip().Hash != tipHash {
		t.Errorf("expected tip hash %s, got %s", tipHash, restored.Tip().Hash)
	}
}

func TestMarketplaceThroughNode(t *testing.T) {
	ctx := context.Background()
	n, _, store := newTestNode(t)
	fundWallet(t, store, "alice", 10)
	fundWallet(t, store, "bob", 20)

	if err := n.ConvertCredits(ctx, "alice", 6); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	listing, err := n.ListTokens(ctx, "alice", 6, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.BuyListing(ctx, "bob", listing.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alice, _ := store.Get(ctx, "alice")
	bob, _ := store.Get(ctx, "bob")
	if alice.Balance != 13 || alice.Tokens != 0 {
		t.Errorf("unexpected seller wallet: %+v", alice)
	}
	if bob.Balance != 11 || bob.Tokens != 6 {
		t.Errorf("unexpected buyer wallet: %+v", bob)
	}
	if len(n.Listings()) != 0 {
		t.Error("expected no open listings")
	}
}
