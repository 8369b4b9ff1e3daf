package messaging

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bardlex/ducominer/internal/stats"
)

// StatsMessage is the JSON envelope for a statistics snapshot
type StatsMessage struct {
	Username  string         `json:"username"`
	RigID     string         `json:"rig_id"`
	Stats     stats.Snapshot `json:"stats"`
	Timestamp time.Time      `json:"timestamp"`
}

// ShareMessage encodes a share event as a protobuf Struct so consumers
// need no generated schema.
func ShareMessage(ev stats.ShareEvent) (*structpb.Struct, error) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return structpb.NewStruct(map[string]any{
		"username":   ev.Username,
		"miner_name": ev.MinerName,
		"rig_id":     ev.RigID,
		"seed":       ev.Seed,
		"difficulty": ev.Difficulty,
		"nonce":      ev.Nonce,
		"hashrate":   ev.Hashrate,
		"elapsed_ms": ev.ElapsedMS,
		"status":     ev.Status,
		"accepted":   ev.Accepted,
		"reward":     ev.Reward,
		"response":   ev.Response,
		"timestamp":  ts.UTC().Format(time.RFC3339Nano),
	})
}

// messageKey partitions by rig so one rig's messages stay ordered
func messageKey(username, rig string) string {
	if rig == "" {
		return username
	}
	return username + "/" + rig
}
