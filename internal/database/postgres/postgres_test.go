package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/bardlex/ducominer/internal/stats"
)

func TestShareFromEvent(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	ev := stats.ShareEvent{
		Username:   "alice",
		MinerName:  "ducominer",
		RigID:      "rig-1",
		Seed:       "abcd",
		Difficulty: 10,
		Nonce:      7,
		Hashrate:   12.5,
		Status:     "GOOD",
		Accepted:   true,
		Reward:     0.00025,
		Response:   "GOOD,0.00025",
		Timestamp:  ts,
	}

	share := ShareFromEvent(ev)
	if share.Username != "alice" || share.RigID != "rig-1" || share.Nonce != 7 || !share.Accepted {
		t.Errorf("unexpected mapping: %+v", share)
	}
	if !share.SubmittedAt.Equal(ts) || share.SubmittedAt.Location() != time.UTC {
		t.Errorf("SubmittedAt = %v, want %v in UTC", share.SubmittedAt, ts)
	}
}

func TestShareFromEvent_DefaultsTimestamp(t *testing.T) {
	share := ShareFromEvent(stats.ShareEvent{})
	if share.SubmittedAt.IsZero() {
		t.Error("expected submission time to default to now")
	}
}

func TestShareArgsMatchPlaceholders(t *testing.T) {
	args := shareArgs(&Share{Nonce: 18446744073709551615, Difficulty: 5})

	if got := strings.Count(insertShareQuery, "$"); got != len(args) {
		t.Fatalf("query has %d placeholders, args has %d", got, len(args))
	}
	if args[5] != "18446744073709551615" {
		t.Errorf("nonce arg = %v, want decimal text", args[5])
	}
	if args[4] != "5" {
		t.Errorf("difficulty arg = %v, want decimal text", args[4])
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient(&Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := NewClient(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range schema {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("schema statement must be idempotent: %s", stmt)
		}
	}
}
