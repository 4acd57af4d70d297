package marketplace

import (
	"context"
	"testing"

	"github.com/ecl-project/ecl/internal/wallet"
	"github.com/ecl-project/ecl/pkg/errors"
	"github.com/ecl-project/ecl/pkg/log"
)

func newTestMarket(t *testing.T) (*Market, *wallet.MemoryStore) {
	t.Helper()
	store := wallet.NewMemoryStore()
	logger := log.New("test", "0.0.0", "error", "text")
	return NewMarket(store, logger), store
}

func putWallet(t *testing.T, store *wallet.MemoryStore, address string, balance, tokens uint64) {
	t.Helper()
	err := store.Put(context.Background(), &wallet.Wallet{
		Address: address,
		Balance: balance,
		Tokens:  tokens,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 10, 0)

	if err := market.Convert(ctx, "alice", 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w, _ := store.Get(ctx, "alice")
	if w.Balance != 6 || w.Tokens != 4 {
		t.Errorf("expected balance 6 and tokens 4, got %d and %d", w.Balance, w.Tokens)
	}
}

func TestConvert_InsufficientBalance(t *testing.T) {
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 3, 0)

	if err := market.Convert(context.Background(), "alice", 5); err == nil {
		t.Error("expected an error")
	}
}

func TestConvert_WalletNotFound(t *testing.T) {
	market, _ := newTestMarket(t)

	err := market.Convert(context.Background(), "ghost", 1)
	if !errors.IsCode(err, errors.CodeWalletNotFound) {
		t.Errorf("expected code %s, got %v", errors.CodeWalletNotFound, err)
	}
}

func TestListEscrowsTokens(t *testing.T) {
	ctx := context.Background()
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 0, 10)

	listing, err := market.List(ctx, "alice", 6, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w, _ := store.Get(ctx, "alice")
	if w.Tokens != 4 {
		t.Errorf("expected 4 tokens after escrow, got %d", w.Tokens)
	}
	if listing.Tokens != 6 || listing.Price != 12 {
		t.Errorf("unexpected listing: %+v", listing)
	}
	if len(market.Listings()) != 1 {
		t.Errorf("expected 1 open listing, got %d", len(market.Listings()))
	}
}

func TestList_TooFewTokens(t *testing.T) {
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 0, 2)

	if _, err := market.List(context.Background(), "alice", 6, 12); err == nil {
		t.Error("expected an error")
	}
}

func TestBuy(t *testing.T) {
	ctx := context.Background()
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 0, 10)
	putWallet(t, store, "bob", 20, 0)

	listing, err := market.List(ctx, "alice", 6, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := market.Buy(ctx, "bob", listing.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alice, _ := store.Get(ctx, "alice")
	bob, _ := store.Get(ctx, "bob")

	if alice.Balance != 12 || alice.Tokens != 4 {
		t.Errorf("unexpected seller wallet: %+v", alice)
	}
	if bob.Balance != 8 || bob.Tokens != 6 {
		t.Errorf("unexpected buyer wallet: %+v", bob)
	}
	if len(market.Listings()) != 0 {
		t.Error("expected the listing to close")
	}
}

func TestBuy_OwnListing(t *testing.T) {
	ctx := context.Background()
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 20, 10)

	listing, err := market.List(ctx, "alice", 6, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := market.Buy(ctx, "alice", listing.ID); err == nil {
		t.Error("expected an error")
	}
}

func TestBuy_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 0, 10)
	putWallet(t, store, "bob", 5, 0)

	listing, err := market.List(ctx, "alice", 6, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := market.Buy(ctx, "bob", listing.ID); err == nil {
		t.Error("expected an error")
	}

	// The listing stays open and the escrow stands
	if len(market.Listings()) != 1 {
		t.Error("expected the listing to stay open")
	}
}

func TestCancelRefundsEscrow(t *testing.T) {
	ctx := context.Background()
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 0, 10)

	listing, err := market.List(ctx, "alice", 6, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := market.Cancel(ctx, "alice", listing.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w, _ := store.Get(ctx, "alice")
	if w.Tokens != 10 {
		t.Errorf("expected escrow refunded, got %d tokens", w.Tokens)
	}
	if len(market.Listings()) != 0 {
		t.Error("expected no open listings")
	}
}

func TestCancel_OnlySeller(t *testing.T) {
	ctx := context.Background()
	market, store := newTestMarket(t)
	putWallet(t, store, "alice", 0, 10)
	putWallet(t, store, "bob", 0, 0)

	listing, err := market.List(ctx, "alice", 6, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := market.Cancel(ctx, "bob", listing.ID); err == nil {
		t.Error("expected an error")
	}
}
