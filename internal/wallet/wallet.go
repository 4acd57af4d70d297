// Package wallet manages participant accounts: address generation, balances,
// and the marketplace token pool. Stores are pluggable so a node can run
// in-memory for standalone mode or against Redis when clustered.
package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/tyler-smith/go-bip39"
)

// InitialBalance is credited to every freshly generated wallet so new
// participants can stake their first claims
const InitialBalance = 10

// Wallet is a participant account. Balance is the spendable credit used for
// staking and rewards; Tokens is the marketplace redemption pool filled by
// converting credits.
type Wallet struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Tokens  uint64 `json:"tokens"`
}

// Store persists wallets by address
type Store interface {
	// Get returns the wallet for an address, or nil when it does not exist
	Get(ctx context.Context, address string) (*Wallet, error)
	// Put creates or replaces a wallet
	Put(ctx context.Context, w *Wallet) error
	// All returns every stored wallet
	All(ctx context.Context) ([]*Wallet, error)
}

// Generated is a freshly created wallet together with its recovery mnemonic.
// The mnemonic is shown once and never persisted.
type Generated struct {
	Wallet   *Wallet
	Mnemonic string
}

// Generate creates a new wallet with a bip39 recovery mnemonic and the
// initial balance. The address is the hash of the mnemonic entropy.
func Generate() (*Generated, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, fmt.Errorf("generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("derive mnemonic: %w", err)
	}

	address := chainhash.HashH(entropy).String()

	return &Generated{
		Wallet: &Wallet{
			Address: address,
			Balance: InitialBalance,
		},
		Mnemonic: mnemonic,
	}, nil
}

// Recover rebuilds the wallet address from a recovery mnemonic. The balance
// still lives in the store; this only re-derives the address.
func Recover(mnemonic string) (string, error) {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return "", fmt.Errorf("invalid mnemonic: %w", err)
	}
	return chainhash.HashH(entropy).String(), nil
}
