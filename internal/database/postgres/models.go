package postgres

import (
	"time"

	"github.com/bardlex/ducominer/internal/stats"
)

// Share represents one submitted share in the ledger
type Share struct {
	ID          int64     `db:"id"`
	Username    string    `db:"username"`
	MinerName   string    `db:"miner_name"`
	RigID       string    `db:"rig_id"`
	Seed        string    `db:"seed"`
	Difficulty  uint64    `db:"difficulty"`
	Nonce       uint64    `db:"nonce"`
	Hashrate    float64   `db:"hashrate"`
	ElapsedMS   int64     `db:"elapsed_ms"`
	Status      string    `db:"status"`
	Accepted    bool      `db:"accepted"`
	Reward      float64   `db:"reward"`
	Response    string    `db:"response"`
	SubmittedAt time.Time `db:"submitted_at"`
}

// ShareFromEvent maps a share event onto a ledger row
func ShareFromEvent(ev stats.ShareEvent) *Share {
	submitted := ev.Timestamp
	if submitted.IsZero() {
		submitted = time.Now()
	}
	return &Share{
		Username:    ev.Username,
		MinerName:   ev.MinerName,
		RigID:       ev.RigID,
		Seed:        ev.Seed,
		Difficulty:  ev.Difficulty,
		Nonce:       ev.Nonce,
		Hashrate:    ev.Hashrate,
		ElapsedMS:   ev.ElapsedMS,
		Status:      ev.Status,
		Accepted:    ev.Accepted,
		Reward:      ev.Reward,
		Response:    ev.Response,
		SubmittedAt: submitted.UTC(),
	}
}
