package ledger

import (
	"encoding/json"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// GenesisPreviousHash is the previous_hash carried by the genesis block
const GenesisPreviousHash = "0"

// Block is one link of the hash chain. Hash digests (index, timestamp,
// transactions, previous_hash); PreviousHash must equal the predecessor's Hash.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previous_hash"`
	Hash         string        `json:"hash"`
}

// NewBlock builds a block over the given transactions and seals its hash
func NewBlock(index uint64, transactions []Transaction, previousHash string) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    time.Now().Unix(),
		Transactions: transactions,
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// NewGenesisBlock builds the fixed index-0 block. The timestamp is pinned so
// that independently bootstrapped peers agree on the genesis hash.
func NewGenesisBlock() *Block {
	b := &Block{
		Index:        0,
		Timestamp:    0,
		Transactions: []Transaction{},
		PreviousHash: GenesisPreviousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash returns the content digest of the block's sealed fields
func (b *Block) ComputeHash() string {
	payload, _ := json.Marshal(struct {
		Index        uint64        `json:"index"`
		Timestamp    int64         `json:"timestamp"`
		Transactions []Transaction `json:"transactions"`
		PreviousHash string        `json:"previous_hash"`
	}{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
		PreviousHash: b.PreviousHash,
	})
	h := chainhash.DoubleHashH(payload)
	return h.String()
}

// RewardTotal sums the reward amounts carried by the block's transactions
func (b *Block) RewardTotal() uint64 {
	var total uint64
	for _, tx := range b.Transactions {
		total += tx.Amount
	}
	return total
}
