// Package marketplace lets participants trade redemption tokens for credits.
// Credits convert to tokens one for one; listed tokens are held in escrow
// until the listing sells or is cancelled.
package marketplace

import (
	"context"
	"fmt"
	"sort"

	"github.com/ecl-project/ecl/internal/wallet"
	"github.com/ecl-project/ecl/pkg/errors"
	"github.com/ecl-project/ecl/pkg/log"
)

// Listing is an open token sale. The listed tokens sit in escrow, already
// deducted from the seller's wallet.
type Listing struct {
	ID     string `json:"id"`
	Seller string `json:"seller"`
	Tokens uint64 `json:"tokens"`
	Price  uint64 `json:"price"`
}

// Market manages listings over a wallet store. It does no locking; the
// owning node serializes calls.
type Market struct {
	wallets  wallet.Store
	listings map[string]*Listing
	nextID   uint64
	logger   *log.Logger
}

// NewMarket creates an empty marketplace
func NewMarket(wallets wallet.Store, logger *log.Logger) *Market {
	return &Market{
		wallets:  wallets,
		listings: make(map[string]*Listing),
		logger:   logger.WithComponent("marketplace"),
	}
}

func (m *Market) getWallet(ctx context.Context, operation, address string) (*wallet.Wallet, error) {
	w, err := m.wallets.Get(ctx, address)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, operation,
			"failed to load wallet")
	}
	if w == nil {
		return nil, errors.New(errors.ErrorTypeWallet, operation,
			"wallet does not exist").
			WithCode(errors.CodeWalletNotFound).
			WithContext("wallet_address", address)
	}
	return w, nil
}

// Convert exchanges credits for redemption tokens one for one
func (m *Market) Convert(ctx context.Context, address string, amount uint64) error {
	if amount == 0 {
		return errors.New(errors.ErrorTypeValidation, "convert_credits",
			"conversion amount must be positive")
	}

	w, err := m.getWallet(ctx, "convert_credits", address)
	if err != nil {
		return err
	}
	if w.Balance < amount {
		return errors.New(errors.ErrorTypeWallet, "convert_credits",
			"balance cannot cover the conversion").
			WithContext("wallet_address", address).
			WithContext("balance", w.Balance).
			WithContext("amount", amount)
	}

	w.Balance -= amount
	w.Tokens += amount
	if err := m.wallets.Put(ctx, w); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "convert_credits",
			"failed to store conversion")
	}

	m.logger.Info("credits converted", "wallet_address", address, "amount", amount)
	return nil
}

// List escrows a seller's tokens into a new listing
func (m *Market) List(ctx context.Context, seller string, tokens, price uint64) (*Listing, error) {
	if tokens == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "create_listing",
			"listing must offer at least one token")
	}

	w, err := m.getWallet(ctx, "create_listing", seller)
	if err != nil {
		return nil, err
	}
	if w.Tokens < tokens {
		return nil, errors.New(errors.ErrorTypeWallet, "create_listing",
			"wallet holds fewer tokens than offered").
			WithContext("wallet_address", seller).
			WithContext("tokens", w.Tokens).
			WithContext("offered", tokens)
	}

	w.Tokens -= tokens
	if err := m.wallets.Put(ctx, w); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "create_listing",
			"failed to escrow tokens")
	}

	m.nextID++
	listing := &Listing{
		ID:     fmt.Sprintf("listing-%d", m.nextID),
		Seller: seller,
		Tokens: tokens,
		Price:  price,
	}
	m.listings[listing.ID] = listing

	m.logger.Info("listing created",
		"listing_id", listing.ID, "seller", seller, "tokens", tokens, "price", price)
	return listing, nil
}

// Buy settles a listing: the buyer pays the price in credits to the seller
// and receives the escrowed tokens
func (m *Market) Buy(ctx context.Context, buyer, listingID string) error {
	listing, ok := m.listings[listingID]
	if !ok {
		return errors.New(errors.ErrorTypeValidation, "buy_listing",
			"listing does not exist").
			WithContext("listing_id", listingID)
	}
	if listing.Seller == buyer {
		return errors.New(errors.ErrorTypeValidation, "buy_listing",
			"cannot buy an own listing").
			WithContext("listing_id", listingID)
	}

	buyerWallet, err := m.getWallet(ctx, "buy_listing", buyer)
	if err != nil {
		return err
	}
	if buyerWallet.Balance < listing.Price {
		return errors.New(errors.ErrorTypeWallet, "buy_listing",
			"balance cannot cover the listing price").
			WithContext("wallet_address", buyer).
			WithContext("balance", buyerWallet.Balance).
			WithContext("price", listing.Price)
	}

	sellerWallet, err := m.getWallet(ctx, "buy_listing", listing.Seller)
	if err != nil {
		return err
	}

	buyerWallet.Balance -= listing.Price
	buyerWallet.Tokens += listing.Tokens
	sellerWallet.Balance += listing.Price

	if err := m.wallets.Put(ctx, buyerWallet); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "buy_listing",
			"failed to store buyer wallet")
	}
	if err := m.wallets.Put(ctx, sellerWallet); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "buy_listing",
			"failed to store seller wallet")
	}

	delete(m.listings, listingID)

	m.logger.Info("listing sold",
		"listing_id", listingID, "seller", listing.Seller, "buyer", buyer)
	return nil
}

// Cancel removes a seller's listing and refunds the escrowed tokens
func (m *Market) Cancel(ctx context.Context, seller, listingID string) error {
	listing, ok := m.listings[listingID]
	if !ok {
		return errors.New(errors.ErrorTypeValidation, "cancel_listing",
			"listing does not exist").
			WithContext("listing_id", listingID)
	}
	if listing.Seller != seller {
		return errors.New(errors.ErrorTypeValidation, "cancel_listing",
			"only the seller can cancel a listing").
			WithContext("listing_id", listingID)
	}

	w, err := m.getWallet(ctx, "cancel_listing", seller)
	if err != nil {
		return err
	}

	w.Tokens += listing.Tokens
	if err := m.wallets.Put(ctx, w); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "cancel_listing",
			"failed to refund escrowed tokens")
	}

	delete(m.listings, listingID)
	m.logger.Info("listing cancelled", "listing_id", listingID, "seller", seller)
	return nil
}

// Listings returns the open listings sorted by id
func (m *Market) Listings() []*Listing {
	out := make([]*Listing, 0, len(m.listings))
	for _, l := range m.listings {
		copied := *l
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
