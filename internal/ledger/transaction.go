package ledger

import "encoding/json"

// TaskStatus represents the lifecycle state of a claim transaction
type TaskStatus string

const (
	// StatusPendingValidation - submitted, awaiting the automated compliance pass
	StatusPendingValidation TaskStatus = "pending_validation"
	// StatusValidated - accepted by compliance, awaiting mining
	StatusValidated TaskStatus = "validated"
	// StatusRejected - rejected by compliance, stake forfeited
	StatusRejected TaskStatus = "rejected"
)

// ReceiverUnsettled is the sentinel receiver address for claims that have not
// been mined yet. Mining rewrites the receiver to the claimant.
const ReceiverUnsettled = "protocol-mint"

// Transaction is a staked impact claim. Task is the dedup key across pools
// and mined blocks; ProofMetadata is the claim's raw proof payload.
type Transaction struct {
	Sender        string          `json:"sender"`
	Receiver      string          `json:"receiver"`
	Amount        uint64          `json:"amount"`
	Task          string          `json:"task"`
	ProofMetadata json.RawMessage `json:"proof_metadata"`
	Status        TaskStatus      `json:"status"`
}

// NewTransaction creates a pending claim transaction for a wallet
func NewTransaction(sender string, amount uint64, task string, proofMetadata json.RawMessage) *Transaction {
	return &Transaction{
		Sender:        sender,
		Receiver:      ReceiverUnsettled,
		Amount:        amount,
		Task:          task,
		ProofMetadata: proofMetadata,
		Status:        StatusPendingValidation,
	}
}
