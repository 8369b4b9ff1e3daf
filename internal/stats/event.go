package stats

import "time"

// ShareEvent describes one submitted share and the pool's verdict. It is
// what the share sinks receive.
type ShareEvent struct {
	Username   string    `json:"username"`
	MinerName  string    `json:"miner_name"`
	RigID      string    `json:"rig_id"`
	Seed       string    `json:"seed"`
	Difficulty uint64    `json:"difficulty"`
	Nonce      uint64    `json:"nonce"`
	Hashrate   float64   `json:"hashrate"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Status     string    `json:"status"`
	Accepted   bool      `json:"accepted"`
	Reward     float64   `json:"reward"`
	Response   string    `json:"response"`
	Timestamp  time.Time `json:"timestamp"`
}
