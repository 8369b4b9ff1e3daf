// Package stats accumulates mining yield counters and derived rates. The
// mining worker is the only writer; any goroutine may take a Snapshot.
package stats

import (
	"sync"
	"time"

	"github.com/bardlex/ducominer/internal/duco"
)

// Snapshot is a consistent copy of the miner statistics
type Snapshot struct {
	SharesAccepted    uint64  `json:"shares_accepted"`
	SharesRejected    uint64  `json:"shares_rejected"`
	EarnedToday       float64 `json:"earned_today"`
	EarnedTotal       float64 `json:"earned_total"`
	CurrentHashrate   float64 `json:"current_hashrate"`
	AvgHashrate       float64 `json:"avg_hashrate"`
	CurrentDifficulty uint64  `json:"current_difficulty"`
	UptimeSeconds     uint64  `json:"uptime_seconds"`
	TotalHashes       uint64  `json:"total_hashes"`
	State             string  `json:"state"`
	LastMessage       string  `json:"last_message"`
}

// Uptime returns UptimeSeconds as a duration
func (s Snapshot) Uptime() time.Duration {
	return time.Duration(s.UptimeSeconds) * time.Second
}

// Aggregator guards the statistics with a RWMutex
type Aggregator struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewAggregator returns zeroed statistics in the given initial state
func NewAggregator(state string) *Aggregator {
	return &Aggregator{snap: Snapshot{State: state}}
}

// RecordSubmission applies a pool verdict. Unknown verdicts only update
// the last message.
func (a *Aggregator) RecordSubmission(res *duco.SubmissionResult) {
	if res == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch res.Status {
	case duco.StatusGood:
		a.snap.SharesAccepted++
		if res.HasReward {
			a.snap.EarnedToday += res.Reward
			a.snap.EarnedTotal += res.Reward
		}
	case duco.StatusBad:
		a.snap.SharesRejected++
	}
	a.snap.LastMessage = res.Description()
}

// Refresh recomputes uptime and, once at least a second has passed, the
// average hashrate.
func (a *Aggregator) Refresh(totalHashes uint64, uptime time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snap.TotalHashes = totalHashes
	if uptime >= 0 {
		a.snap.UptimeSeconds = uint64(uptime / time.Second)
	}
	if a.snap.UptimeSeconds > 0 {
		a.snap.AvgHashrate = float64(totalHashes) / float64(a.snap.UptimeSeconds)
	}
}

// SetDifficulty records the difficulty of the job being searched
func (a *Aggregator) SetDifficulty(difficulty uint64) {
	a.mu.Lock()
	a.snap.CurrentDifficulty = difficulty
	a.mu.Unlock()
}

// SetHashrate records the hashrate of the last solved job
func (a *Aggregator) SetHashrate(hashrate float64) {
	a.mu.Lock()
	a.snap.CurrentHashrate = hashrate
	a.mu.Unlock()
}

// SetState mirrors the worker state into the snapshot
func (a *Aggregator) SetState(state string) {
	a.mu.Lock()
	a.snap.State = state
	a.mu.Unlock()
}

// SetLastMessage overwrites the human-readable status line
func (a *Aggregator) SetLastMessage(msg string) {
	a.mu.Lock()
	a.snap.LastMessage = msg
	a.mu.Unlock()
}

// Snapshot returns a copy of the current statistics
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}
