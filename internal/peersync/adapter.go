package peersync

import (
	"context"

	"github.com/ecl-project/ecl/internal/ledger"
	"github.com/ecl-project/ecl/internal/tasks"
	"github.com/ecl-project/ecl/pkg/log"
)

// Broadcaster publishes envelopes to the gossip topic. Publishing is
// best-effort: a failed broadcast is logged and the local operation stands.
type Broadcaster interface {
	Broadcast(ctx context.Context, env *Envelope) error
}

// NopBroadcaster discards every envelope. Used in standalone mode.
type NopBroadcaster struct{}

// Broadcast discards the envelope
func (NopBroadcaster) Broadcast(context.Context, *Envelope) error { return nil }

// Adapter folds inbound gossip into the local ledger. Every Apply is
// idempotent: re-delivered messages leave the ledger unchanged.
type Adapter struct {
	nodeID  string
	ledger  *ledger.Ledger
	manager *tasks.Manager
	logger  *log.Logger
}

// NewAdapter creates an apply adapter for a node's ledger
func NewAdapter(nodeID string, l *ledger.Ledger, manager *tasks.Manager, logger *log.Logger) *Adapter {
	return &Adapter{
		nodeID:  nodeID,
		ledger:  l,
		manager: manager,
		logger:  logger.WithComponent("peersync"),
	}
}

// Apply folds one envelope into the ledger. Only malformed input errors;
// messages the ledger cannot use, like non-extending blocks, are logged and
// dropped so gossip redelivery never wedges the consumer.
func (a *Adapter) Apply(env *Envelope) error {
	if env.NodeID == a.nodeID {
		return nil
	}

	a.logger.LogPeerMessage(env.NodeID, env.Kind, 0)

	switch env.Kind {
	case KindBlock:
		a.applyBlock(env.Block)
	case KindTask:
		a.applyTask(env.Task)
	case KindValidationResult:
		a.manager.ApplyResult(*env.Result)
	}
	return nil
}

// applyBlock appends a peer block when it extends the tip and clears any
// pool entries the block settles. Anything else is discarded: duplicates,
// stale blocks, and competing forks alike.
func (a *Adapter) applyBlock(b *ledger.Block) {
	tip := a.ledger.Tip()
	if b.PreviousHash != tip.Hash {
		a.logger.LogBlockDiscarded(b.Hash, b.PreviousHash, tip.Hash)
		return
	}

	if err := a.ledger.Append(b); err != nil {
		a.logger.WithError(err).Warn("failed to append peer block")
		return
	}

	settled := ledger.NewStringSet()
	for _, tx := range b.Transactions {
		settled.Add(tx.Task)
	}
	a.ledger.RemovePooled(settled)

	a.logger.WithBlock(b.Hash, b.Index).Info("peer block appended",
		"tx_count", len(b.Transactions))
}

// applyTask pools a peer claim unless its task id is already known anywhere
// in the ledger
func (a *Adapter) applyTask(tx *ledger.Transaction) {
	if a.ledger.HasTask(tx.Task) {
		return
	}
	a.ledger.AddPending(tx)
}
