// Package node wires the ledger, wallet store, task manager, marketplace,
// and peer gossip into one serialized unit. Every public method takes the
// node mutex, so ledger state never sees concurrent mutation no matter which
// surface the call came from: console, HTTP API, gossip consumer, or the
// sentinel feed.
package node

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ecl-project/ecl/internal/archive"
	"github.com/ecl-project/ecl/internal/claims"
	"github.com/ecl-project/ecl/internal/compliance"
	"github.com/ecl-project/ecl/internal/ledger"
	"github.com/ecl-project/ecl/internal/marketplace"
	"github.com/ecl-project/ecl/internal/metrics"
	"github.com/ecl-project/ecl/internal/peersync"
	"github.com/ecl-project/ecl/internal/sentinel"
	"github.com/ecl-project/ecl/internal/storage"
	"github.com/ecl-project/ecl/internal/tasks"
	"github.com/ecl-project/ecl/internal/wallet"
	"github.com/ecl-project/ecl/pkg/circuit"
	"github.com/ecl-project/ecl/pkg/log"
	"github.com/ecl-project/ecl/pkg/retry"
)

// Event kinds published to the event sink
const (
	EventClaimSubmitted   = "claim_submitted"
	EventValidationResult = "validation_result"
	EventBlockMined       = "block_mined"
	EventBlockReceived    = "block_received"
)

// Event is one node activity notification
type Event struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// EventSink receives activity events, typically for the websocket stream
type EventSink interface {
	PublishEvent(event Event)
}

// Deps carries the node's collaborators. Store, Broadcaster, Archive,
// Metrics, and Events may be nil; the node degrades to in-memory standalone
// operation for whatever is missing.
type Deps struct {
	NodeID      string
	Ledger      *ledger.Ledger
	Wallets     wallet.Store
	Store       *storage.Store
	Broadcaster peersync.Broadcaster
	Archive     *archive.BlockRepository
	Metrics     *metrics.Client
	Events      EventSink
	RewardCap   uint64
	Logger      *log.Logger
}

// Node is one ledger peer
type Node struct {
	mu          sync.Mutex
	nodeID      string
	ledger      *ledger.Ledger
	wallets     wallet.Store
	manager     *tasks.Manager
	market      *marketplace.Market
	adapter     *peersync.Adapter
	store       *storage.Store
	broadcaster peersync.Broadcaster
	archive     *archive.BlockRepository
	metrics     *metrics.Client
	events      EventSink
	retryConfig *retry.Config
	breaker     *circuit.Breaker
	logger      *log.Logger
}

// New assembles a node from its collaborators
func New(deps Deps) *Node {
	logger := deps.Logger
	manager := tasks.NewManager(deps.Ledger, deps.Wallets, compliance.NewEngine(nil), deps.RewardCap, logger)

	broadcaster := deps.Broadcaster
	if broadcaster == nil {
		broadcaster = peersync.NopBroadcaster{}
	}

	return &Node{
		nodeID:      deps.NodeID,
		ledger:      deps.Ledger,
		wallets:     deps.Wallets,
		manager:     manager,
		market:      marketplace.NewMarket(deps.Wallets, logger),
		adapter:     peersync.NewAdapter(deps.NodeID, deps.Ledger, manager, logger),
		store:       deps.Store,
		broadcaster: broadcaster,
		archive:     deps.Archive,
		metrics:     deps.Metrics,
		events:      deps.Events,
		retryConfig: retry.ArchiveConfig(),
		breaker:     circuit.New(circuit.DefaultConfig()),
		logger:      logger.WithComponent("node"),
	}
}

// NodeID returns the node's gossip identity
func (n *Node) NodeID() string {
	return n.nodeID
}

// persist writes the ledger snapshot. In-memory state is already mutated
// when this runs, so a failed write is logged rather than unwound; the next
// successful persist covers the gap.
func (n *Node) persist() {
	if n.store == nil {
		return
	}
	if err := n.store.SaveLedger(n.ledger.Snapshot()); err != nil {
		n.logger.WithError(err).Error("failed to persist ledger snapshot")
	}
}

// broadcast publishes an envelope best-effort. One attempt, failures logged.
func (n *Node) broadcast(ctx context.Context, env *peersync.Envelope) {
	if err := n.broadcaster.Broadcast(ctx, env); err != nil {
		n.logger.WithError(err).Warn("broadcast failed", "kind", env.Kind)
	}
}

func (n *Node) publishEvent(kind string, payload any) {
	if n.events != nil {
		n.events.PublishEvent(Event{Kind: kind, Payload: payload})
	}
}

// CreateWallet generates and stores a new wallet
func (n *Node) CreateWallet(ctx context.Context) (*wallet.Generated, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	gen, err := wallet.Generate()
	if err != nil {
		return nil, err
	}
	if err := n.wallets.Put(ctx, gen.Wallet); err != nil {
		return nil, err
	}

	n.logger.WithWallet(gen.Wallet.Address).Info("wallet created")
	return gen, nil
}

// SubmitClaim stakes a claim into the validation pool and gossips it
func (n *Node) SubmitClaim(ctx context.Context, sender, taskID string, proofRaw json.RawMessage) (*ledger.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	proof := claims.Parse(proofRaw)
	tx, err := n.manager.Submit(ctx, sender, taskID, proof)
	if err != nil {
		return nil, err
	}

	n.persist()
	n.broadcast(ctx, peersync.NewTaskEnvelope(n.nodeID, tx))

	if n.metrics != nil {
		n.metrics.WriteSubmissionMetric(string(proof.Kind()), tx.Amount, n.ledger.StakeAmount)
	}
	n.publishEvent(EventClaimSubmitted, tx)

	return tx, nil
}

// RunValidationPass screens the pending pool and gossips each verdict
func (n *Node) RunValidationPass(ctx context.Context) []tasks.Result {
	n.mu.Lock()
	defer n.mu.Unlock()

	results := n.manager.RunValidationPass()
	if len(results) == 0 {
		return results
	}

	n.persist()
	for _, res := range results {
		n.broadcast(ctx, peersync.NewResultEnvelope(n.nodeID, res))
		if n.metrics != nil {
			n.metrics.WriteValidationMetric("", string(res.Status), string(res.Code))
		}
		n.publishEvent(EventValidationResult, res)
	}

	return results
}

// Mine settles the validated pool into a new block, gossips it, and mirrors
// it into the archive
func (n *Node) Mine(ctx context.Context) (*ledger.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	block, err := n.manager.Mine(ctx)
	if err != nil {
		return nil, err
	}

	n.persist()
	n.broadcast(ctx, peersync.NewBlockEnvelope(n.nodeID, block))
	n.archiveBlock(ctx, block, false)
	n.publishEvent(EventBlockMined, block)

	return block, nil
}

// archiveBlock mirrors a block into PostgreSQL behind the circuit breaker,
// retrying transient failures. The archive is a reporting copy, so a final
// failure is logged and the block stands.
func (n *Node) archiveBlock(ctx context.Context, block *ledger.Block, peerOrigin bool) {
	if n.metrics != nil {
		n.metrics.WriteBlockMetric(block.Index, block.Hash, len(block.Transactions), block.RewardTotal(), peerOrigin)
	}
	if n.archive == nil {
		return
	}

	err := n.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, n.retryConfig, func() error {
			return n.archive.InsertBlock(ctx, block)
		})
	})
	if err != nil {
		n.logger.WithError(err).WithBlock(block.Hash, block.Index).
			Error("failed to archive block")
	}
}

// HandlePeerMessage folds one gossip envelope into the ledger. Implements
// the messaging consumer handler.
func (n *Node) HandlePeerMessage(ctx context.Context, env *peersync.Envelope) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if env.NodeID == n.nodeID {
		return nil
	}

	tipBefore := n.ledger.Tip().Hash
	if err := n.adapter.Apply(env); err != nil {
		return err
	}
	n.persist()

	if env.Kind == peersync.KindBlock && n.ledger.Tip().Hash != tipBefore {
		n.archiveBlock(ctx, env.Block, true)
		n.publishEvent(EventBlockReceived, env.Block)
	}
	return nil
}

// HandleSentinelPacket submits the claim carried by a sentinel telemetry
// packet on behalf of the operator's wallet. Implements the sentinel feed
// handler.
func (n *Node) HandleSentinelPacket(ctx context.Context, p *sentinel.Packet) error {
	_, err := n.SubmitClaim(ctx, p.Wallet, p.TaskID, p.Proof)
	return err
}

// AuthorizeDevice whitelists a device or sentinel identifier
func (n *Node) AuthorizeDevice(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.ledger.AuthorizedDevices.Add(id)
	n.persist()
	n.logger.Info("device authorized", "device_id", id)
}

// ChainSnapshot returns a copy of the block chain
func (n *Node) ChainSnapshot() []*ledger.Block {
	n.mu.Lock()
	defer n.mu.Unlock()

	chain := make([]*ledger.Block, len(n.ledger.Chain))
	copy(chain, n.ledger.Chain)
	return chain
}

// PendingPools returns copies of both task pools
func (n *Node) PendingPools() (awaitingValidation, awaitingMining []*ledger.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()

	awaitingValidation = make([]*ledger.Transaction, len(n.ledger.AwaitingValidation))
	copy(awaitingValidation, n.ledger.AwaitingValidation)
	awaitingMining = make([]*ledger.Transaction, len(n.ledger.AwaitingMining))
	copy(awaitingMining, n.ledger.AwaitingMining)
	return awaitingValidation, awaitingMining
}

// Balances returns every stored wallet
func (n *Node) Balances(ctx context.Context) ([]*wallet.Wallet, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.wallets.All(ctx)
}

// Marketplace operations, serialized like everything else

// ConvertCredits exchanges a wallet's credits for redemption tokens
func (n *Node) ConvertCredits(ctx context.Context, address string, amount uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Convert(ctx, address, amount)
}

// ListTokens creates a marketplace listing
func (n *Node) ListTokens(ctx context.Context, seller string, tokens, price uint64) (*marketplace.Listing, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.List(ctx, seller, tokens, price)
}

// BuyListing settles a marketplace listing
func (n *Node) BuyListing(ctx context.Context, buyer, listingID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Buy(ctx, buyer, listingID)
}

// CancelListing cancels a marketplace listing
func (n *Node) CancelListing(ctx context.Context, seller, listingID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Cancel(ctx, seller, listingID)
}

// Listings returns the open marketplace listings
func (n *Node) Listings() []*marketplace.Listing {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.Listings()
}
