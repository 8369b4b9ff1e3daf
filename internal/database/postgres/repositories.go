package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// ShareRepository handles share-related database operations
type ShareRepository struct {
	db *sql.DB
}

// NewShareRepository creates a new share repository
func NewShareRepository(db *sql.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

const insertShareQuery = `
	INSERT INTO duco_shares (username, miner_name, rig_id, seed, difficulty, nonce, hashrate,
	                         elapsed_ms, status, accepted, reward, response, submitted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id`

// CreateShare appends a share to the ledger
func (r *ShareRepository) CreateShare(ctx context.Context, share *Share) error {
	err := r.db.QueryRowContext(ctx, insertShareQuery, shareArgs(share)...).Scan(&share.ID)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	return nil
}

// shareArgs orders the insert arguments. Unsigned values that may exceed
// int64 travel as decimal text into NUMERIC and BIGINT columns.
func shareArgs(share *Share) []any {
	return []any{
		share.Username,
		share.MinerName,
		share.RigID,
		share.Seed,
		strconv.FormatUint(share.Difficulty, 10),
		strconv.FormatUint(share.Nonce, 10),
		share.Hashrate,
		share.ElapsedMS,
		share.Status,
		share.Accepted,
		share.Reward,
		share.Response,
		share.SubmittedAt,
	}
}
