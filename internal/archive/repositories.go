package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ecl-project/ecl/internal/ledger"
)

// BlockRecord is an archived block row
type BlockRecord struct {
	ID           int64
	Height       uint64
	Hash         string
	PreviousHash string
	Timestamp    int64
	TxCount      int
	RewardTotal  uint64
	ArchivedAt   time.Time
}

// TransactionRecord is an archived settled claim row
type TransactionRecord struct {
	ID            int64
	BlockHeight   uint64
	TaskID        string
	Sender        string
	Receiver      string
	Amount        uint64
	ProofMetadata []byte
	Status        string
}

// BlockRepository archives mined blocks and their settled claims
type BlockRepository struct {
	db *sql.DB
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db *sql.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// InsertBlock archives one mined block with all of its transactions. The
// insert is transactional and idempotent on the block hash.
func (r *BlockRepository) InsertBlock(ctx context.Context, b *ledger.Block) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	blockQuery := `
		INSERT INTO blocks (height, hash, previous_hash, block_timestamp, tx_count, reward_total, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO NOTHING`

	result, err := tx.ExecContext(ctx, blockQuery,
		b.Index, b.Hash, b.PreviousHash, b.Timestamp,
		len(b.Transactions), b.RewardTotal(), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive block: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check archive insert: %w", err)
	}
	if inserted == 0 {
		// Already archived
		return nil
	}

	txQuery := `
		INSERT INTO block_transactions (block_height, task_id, sender, receiver, amount, proof_metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, claim := range b.Transactions {
		if _, err := tx.ExecContext(ctx, txQuery,
			b.Index, claim.Task, claim.Sender, claim.Receiver,
			claim.Amount, []byte(claim.ProofMetadata), string(claim.Status),
		); err != nil {
			return fmt.Errorf("failed to archive transaction %s: %w", claim.Task, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	return nil
}

// RecentBlocks returns the most recently mined blocks, newest first,
// skipping the first offset rows for pagination
func (r *BlockRepository) RecentBlocks(ctx context.Context, limit, offset int) ([]*BlockRecord, error) {
	query := `
		SELECT id, height, hash, previous_hash, block_timestamp, tx_count, reward_total, archived_at
		FROM blocks
		ORDER BY height DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*BlockRecord
	for rows.Next() {
		rec := &BlockRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Height, &rec.Hash, &rec.PreviousHash,
			&rec.Timestamp, &rec.TxCount, &rec.RewardTotal, &rec.ArchivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blocks: %w", err)
	}

	return blocks, nil
}

// TransactionsByWallet returns the archived settled claims of one wallet,
// newest block first
func (r *BlockRepository) TransactionsByWallet(ctx context.Context, address string, limit int) ([]*TransactionRecord, error) {
	query := `
		SELECT id, block_height, task_id, sender, receiver, amount, proof_metadata, status
		FROM block_transactions
		WHERE sender = $1
		ORDER BY block_height DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet transactions: %w", err)
	}
	defer rows.Close()

	var records []*TransactionRecord
	for rows.Next() {
		rec := &TransactionRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.BlockHeight, &rec.TaskID, &rec.Sender,
			&rec.Receiver, &rec.Amount, &rec.ProofMetadata, &rec.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return records, nil
}
