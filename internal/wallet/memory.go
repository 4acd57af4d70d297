package wallet

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used in standalone mode and tests
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]Wallet
}

// NewMemoryStore creates an empty in-memory wallet store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]Wallet),
	}
}

// Get returns the wallet for an address, or nil when it does not exist
func (s *MemoryStore) Get(_ context.Context, address string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[address]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// Put creates or replaces a wallet
func (s *MemoryStore) Put(_ context.Context, w *Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets[w.Address] = *w
	return nil
}

// All returns every stored wallet sorted by address
func (s *MemoryStore) All(_ context.Context) ([]*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		copied := w
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
