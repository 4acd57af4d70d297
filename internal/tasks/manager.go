package tasks

import (
	"context"

	"github.com/ecl-project/ecl/internal/claims"
	"github.com/ecl-project/ecl/internal/compliance"
	"github.com/ecl-project/ecl/internal/ledger"
	"github.com/ecl-project/ecl/internal/wallet"
	"github.com/ecl-project/ecl/pkg/errors"
	"github.com/ecl-project/ecl/pkg/log"
)

// Result is the verdict for one claim from a validation pass
type Result struct {
	TaskID string            `json:"task_id"`
	Status ledger.TaskStatus `json:"status"`
	Code   errors.Code       `json:"code,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// Manager owns the claim lifecycle over a ledger and wallet store. It does no
// locking; the owning node serializes calls.
type Manager struct {
	ledger    *ledger.Ledger
	wallets   wallet.Store
	engine    *compliance.Engine
	rewardCap uint64
	logger    *log.Logger
}

// NewManager creates a task manager
func NewManager(l *ledger.Ledger, wallets wallet.Store, engine *compliance.Engine, rewardCap uint64, logger *log.Logger) *Manager {
	if rewardCap == 0 {
		rewardCap = DefaultRewardCap
	}
	return &Manager{
		ledger:    l,
		wallets:   wallets,
		engine:    engine,
		rewardCap: rewardCap,
		logger:    logger.WithComponent("tasks"),
	}
}

// Submit stakes a claim into the validation pool. The stake is debited
// immediately and comes back only if the claim survives validation and gets
// mined. The proof is screened later, during the validation pass, so even an
// implausible claim costs its submitter the stake.
func (m *Manager) Submit(ctx context.Context, sender, taskID string, proof claims.Proof) (*ledger.Transaction, error) {
	if taskID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "submit_claim",
			"task id is required")
	}

	w, err := m.wallets.Get(ctx, sender)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "submit_claim",
			"failed to load wallet")
	}
	if w == nil {
		return nil, errors.New(errors.ErrorTypeWallet, "submit_claim",
			"wallet does not exist").
			WithCode(errors.CodeWalletNotFound).
			WithContext("wallet_address", sender)
	}

	stake := m.ledger.StakeAmount
	if w.Balance < stake {
		return nil, errors.New(errors.ErrorTypeWallet, "submit_claim",
			"balance cannot cover the stake").
			WithCode(errors.CodeInsufficientStake).
			WithContext("wallet_address", sender).
			WithContext("balance", w.Balance).
			WithContext("stake", stake)
	}

	if m.ledger.HasTask(taskID) {
		return nil, errors.New(errors.ErrorTypeValidation, "submit_claim",
			"task was already submitted").
			WithCode(errors.CodeDuplicateTask).
			WithContext("task_id", taskID)
	}

	proofMetadata, err := claims.Marshal(proof)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "submit_claim",
			"failed to encode proof")
	}

	w.Balance -= stake
	if err := m.wallets.Put(ctx, w); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "submit_claim",
			"failed to debit stake")
	}

	reward := RewardFor(proof, m.rewardCap)
	tx := ledger.NewTransaction(sender, reward, taskID, proofMetadata)
	m.ledger.AddPending(tx)

	m.logger.LogClaimSubmission(sender, taskID, string(proof.Kind()), reward, stake)
	return tx, nil
}

// RunValidationPass screens every pooled claim, newest first. Accepted claims
// move to the mining pool and consume their evidence token; rejected claims
// leave the pool with the stake forfeited. Returns the verdicts in the order
// they were decided.
func (m *Manager) RunValidationPass() []Result {
	pending := make([]*ledger.Transaction, len(m.ledger.AwaitingValidation))
	copy(pending, m.ledger.AwaitingValidation)

	var results []Result
	for i := len(pending) - 1; i >= 0; i-- {
		tx := pending[i]
		proof := claims.Parse(tx.ProofMetadata)
		outcome := m.engine.Evaluate(proof, m.ledger)

		if outcome.Accepted {
			if outcome.Outlier {
				m.logger.WithTask(tx.Task, string(proof.Kind())).
					Warn("accepted quantity is a statistical outlier",
						"quantity", proof.Quantity())
			}
			m.ledger.ConsumedTokens.Add(proof.EvidenceToken())
			m.ledger.PromoteToMining(tx.Task)
			results = append(results, Result{
				TaskID: tx.Task,
				Status: ledger.StatusValidated,
			})
			m.logger.LogValidationOutcome(tx.Task, string(ledger.StatusValidated), "")
			continue
		}

		tx.Status = ledger.StatusRejected
		m.ledger.DropPending(tx.Task)
		results = append(results, Result{
			TaskID: tx.Task,
			Status: ledger.StatusRejected,
			Code:   outcome.Code,
			Reason: outcome.Reason,
		})
		m.logger.LogValidationOutcome(tx.Task, string(ledger.StatusRejected), outcome.Reason)
	}

	return results
}

// ApplyResult replays a peer's validation verdict against the local pools.
// Unknown task ids are ignored, which makes reapplying a verdict harmless.
func (m *Manager) ApplyResult(res Result) {
	switch res.Status {
	case ledger.StatusValidated:
		for _, tx := range m.ledger.AwaitingValidation {
			if tx.Task == res.TaskID {
				proof := claims.Parse(tx.ProofMetadata)
				if token := proof.EvidenceToken(); token != "" {
					m.ledger.ConsumedTokens.Add(token)
				}
				m.ledger.PromoteToMining(res.TaskID)
				return
			}
		}
	case ledger.StatusRejected:
		m.ledger.DropPending(res.TaskID)
	}
}

// Mine drains the validated pool into a new block atop the tip. Each settled
// claim pays its sender the reward plus the refunded stake; claims whose
// wallet no longer resolves are dropped without settlement. Wallet reads and
// writes are staged before the pool is touched, so a store failure leaves
// the pool, the chain, and every balance as they were.
func (m *Manager) Mine(ctx context.Context) (*ledger.Block, error) {
	pool := m.ledger.AwaitingMining
	if len(pool) == 0 {
		return nil, errors.New(errors.ErrorTypeLedger, "mine_block",
			"no validated claims to mine")
	}

	// Read phase: resolve every sender once and stage the credits in memory.
	var mined []ledger.Transaction
	credited := make(map[string]*wallet.Wallet)
	original := make(map[string]uint64)
	for i := len(pool) - 1; i >= 0; i-- {
		tx := pool[i]

		w, seen := credited[tx.Sender]
		if !seen {
			var err error
			w, err = m.wallets.Get(ctx, tx.Sender)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "mine_block",
					"failed to load wallet")
			}
			credited[tx.Sender] = w
			if w != nil {
				original[tx.Sender] = w.Balance
			}
		}
		if w == nil {
			m.logger.WithTask(tx.Task, "").Warn("dropping claim with unresolvable wallet",
				"wallet_address", tx.Sender)
			continue
		}

		w.Balance += tx.Amount + m.ledger.StakeAmount
		settled := *tx
		settled.Receiver = settled.Sender
		mined = append(mined, settled)
	}

	if len(mined) == 0 {
		m.ledger.AwaitingMining = nil
		return nil, errors.New(errors.ErrorTypeLedger, "mine_block",
			"every validated claim was dropped")
	}

	// Write phase: a failed credit unwinds the ones already written and
	// leaves the pool for the next attempt.
	var written []*wallet.Wallet
	for _, w := range credited {
		if w == nil {
			continue
		}
		if err := m.wallets.Put(ctx, w); err != nil {
			m.rollbackCredits(ctx, written, original)
			return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "mine_block",
				"failed to credit reward")
		}
		written = append(written, w)
	}

	tip := m.ledger.Tip()
	block := ledger.NewBlock(tip.Index+1, mined, tip.Hash)
	if err := m.ledger.Append(block); err != nil {
		m.rollbackCredits(ctx, written, original)
		return nil, err
	}
	m.ledger.AwaitingMining = nil

	m.logger.LogBlockMined(block.Hash, block.Index, len(block.Transactions), block.RewardTotal())
	return block, nil
}

// rollbackCredits restores the pre-mining balance of wallets already written.
// Best effort: a wallet that cannot be restored is logged and left credited.
func (m *Manager) rollbackCredits(ctx context.Context, written []*wallet.Wallet, original map[string]uint64) {
	for _, w := range written {
		w.Balance = original[w.Address]
		if err := m.wallets.Put(ctx, w); err != nil {
			m.logger.WithError(err).Error("failed to roll back wallet credit",
				"wallet_address", w.Address)
		}
	}
}
