// Package ledger holds the shared ledger state: the hash chain, the two task
// pools, and the compliance registries. The ledger performs no locking of its
// own; the owning node serializes every operation behind a single mutex.
package ledger

import (
	"sort"

	"github.com/ecl-project/ecl/pkg/errors"
)

// DefaultStakeAmount is the collateral withheld per submission when no
// configured value is present
const DefaultStakeAmount = 5

// SeedSentinelID is pre-registered on fresh ledgers so a test sentinel can
// submit device-bearing claims out of the box
const SeedSentinelID = "ecl-sentinel-01"

// StringSet is an append-only membership set. Membership is permanent for the
// lifetime of a ledger.
type StringSet map[string]struct{}

// NewStringSet builds a set from its member list
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts a member
func (s StringSet) Add(v string) { s[v] = struct{}{} }

// Contains reports membership
func (s StringSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// Values returns the members in sorted order
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Ledger is the single shared ledger context
type Ledger struct {
	Chain              []*Block
	StakeAmount        uint64
	AwaitingValidation []*Transaction
	AwaitingMining     []*Transaction
	AuthorizedDevices  StringSet
	ConsumedTokens     StringSet
}

// New creates a fresh ledger with a genesis block and the seed sentinel
func New(stakeAmount uint64) *Ledger {
	if stakeAmount == 0 {
		stakeAmount = DefaultStakeAmount
	}
	return &Ledger{
		Chain:              []*Block{NewGenesisBlock()},
		StakeAmount:        stakeAmount,
		AwaitingValidation: []*Transaction{},
		AwaitingMining:     []*Transaction{},
		AuthorizedDevices:  NewStringSet(SeedSentinelID),
		ConsumedTokens:     NewStringSet(),
	}
}

// Tip returns the most recently appended block
func (l *Ledger) Tip() *Block {
	return l.Chain[len(l.Chain)-1]
}

// Append accepts a block only if it extends the current tip. A mismatched
// previous hash yields CHAIN_CONTINUITY_MISMATCH; the chain is never rolled
// back or forked.
func (l *Ledger) Append(b *Block) error {
	tip := l.Tip()
	if b.PreviousHash != tip.Hash {
		return errors.New(errors.ErrorTypeLedger, "append_block",
			"block does not extend the current tip").
			WithCode(errors.CodeChainContinuityMismatch).
			WithContext("block_index", b.Index).
			WithContext("block_prev_hash", b.PreviousHash).
			WithContext("tip_hash", tip.Hash)
	}
	l.Chain = append(l.Chain, b)
	return nil
}

// IsAuthorizedDevice reports whether a device or sentinel id is whitelisted
func (l *Ledger) IsAuthorizedDevice(id string) bool {
	return l.AuthorizedDevices.Contains(id)
}

// IsConsumedToken reports whether an evidence token was spent by an accepted
// claim
func (l *Ledger) IsConsumedToken(token string) bool {
	return l.ConsumedTokens.Contains(token)
}

// HasTask reports whether a task id exists in either pool or in a mined block
func (l *Ledger) HasTask(taskID string) bool {
	for _, tx := range l.AwaitingValidation {
		if tx.Task == taskID {
			return true
		}
	}
	for _, tx := range l.AwaitingMining {
		if tx.Task == taskID {
			return true
		}
	}
	for _, b := range l.Chain {
		for _, tx := range b.Transactions {
			if tx.Task == taskID {
				return true
			}
		}
	}
	return false
}

// AddPending appends a claim to the validation pool
func (l *Ledger) AddPending(tx *Transaction) {
	l.AwaitingValidation = append(l.AwaitingValidation, tx)
}

// PromoteToMining moves a pending claim into the mining pool and marks it
// Validated. Returns false if no such pending task exists.
func (l *Ledger) PromoteToMining(taskID string) bool {
	for i, tx := range l.AwaitingValidation {
		if tx.Task == taskID {
			l.AwaitingValidation = append(l.AwaitingValidation[:i], l.AwaitingValidation[i+1:]...)
			tx.Status = StatusValidated
			l.AwaitingMining = append(l.AwaitingMining, tx)
			return true
		}
	}
	return false
}

// DropPending removes a claim from the validation pool. The stake stays
// forfeited; nothing is credited back.
func (l *Ledger) DropPending(taskID string) bool {
	for i, tx := range l.AwaitingValidation {
		if tx.Task == taskID {
			l.AwaitingValidation = append(l.AwaitingValidation[:i], l.AwaitingValidation[i+1:]...)
			return true
		}
	}
	return false
}

// RemovePooled drops every pool entry whose task id appears in the given set.
// Used when a peer block settles tasks we still hold pooled.
func (l *Ledger) RemovePooled(taskIDs StringSet) {
	l.AwaitingValidation = filterPool(l.AwaitingValidation, taskIDs)
	l.AwaitingMining = filterPool(l.AwaitingMining, taskIDs)
}

func filterPool(pool []*Transaction, drop StringSet) []*Transaction {
	kept := pool[:0]
	for _, tx := range pool {
		if !drop.Contains(tx.Task) {
			kept = append(kept, tx)
		}
	}
	return kept
}

// Snapshot is the wholesale persisted form of the ledger. Wallet balances are
// owned by the wallet collaborator and are not part of it.
type Snapshot struct {
	Chain                  []*Block       `json:"chain"`
	StakeAmount            uint64         `json:"stake_amount"`
	AwaitingValidation     []*Transaction `json:"awaiting_validation"`
	AwaitingMining         []*Transaction `json:"awaiting_mining"`
	AuthorizedDeviceIDs    []string       `json:"authorized_device_ids"`
	ConsumedEvidenceTokens []string       `json:"consumed_evidence_tokens"`
}

// Snapshot captures the ledger for persistence
func (l *Ledger) Snapshot() *Snapshot {
	return &Snapshot{
		Chain:                  l.Chain,
		StakeAmount:            l.StakeAmount,
		AwaitingValidation:     l.AwaitingValidation,
		AwaitingMining:         l.AwaitingMining,
		AuthorizedDeviceIDs:    l.AuthorizedDevices.Values(),
		ConsumedEvidenceTokens: l.ConsumedTokens.Values(),
	}
}

// FromSnapshot restores a ledger verbatim. Historical hashes are trusted as
// loaded; no re-validation is performed.
func FromSnapshot(s *Snapshot) *Ledger {
	l := &Ledger{
		Chain:              s.Chain,
		StakeAmount:        s.StakeAmount,
		AwaitingValidation: s.AwaitingValidation,
		AwaitingMining:     s.AwaitingMining,
		AuthorizedDevices:  NewStringSet(s.AuthorizedDeviceIDs...),
		ConsumedTokens:     NewStringSet(s.ConsumedEvidenceTokens...),
	}
	if len(l.Chain) == 0 {
		l.Chain = []*Block{NewGenesisBlock()}
	}
	if l.StakeAmount == 0 {
		l.StakeAmount = DefaultStakeAmount
	}
	if l.AwaitingValidation == nil {
		l.AwaitingValidation = []*Transaction{}
	}
	if l.AwaitingMining == nil {
		l.AwaitingMining = []*Transaction{}
	}
	return l
}
