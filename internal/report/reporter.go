// Package report renders periodic statistics reports and fans share
// events and snapshots out to the optional sinks.
package report

import (
	"context"
	"time"

	"github.com/hako/durafmt"

	"github.com/bardlex/ducominer/internal/stats"
	"github.com/bardlex/ducominer/pkg/log"
)

// StatsSource is anything that can produce a statistics snapshot
type StatsSource interface {
	Stats() stats.Snapshot
}

// SnapshotPublisher receives every reported snapshot
type SnapshotPublisher interface {
	PublishSnapshot(snap stats.Snapshot)
}

// Reporter logs a snapshot every interval and forwards it
type Reporter struct {
	source    StatsSource
	publisher SnapshotPublisher
	interval  time.Duration
	logger    *log.Logger
}

// NewReporter creates a reporter. publisher may be nil.
func NewReporter(source StatsSource, publisher SnapshotPublisher, interval time.Duration, logger *log.Logger) *Reporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reporter{
		source:    source,
		publisher: publisher,
		interval:  interval,
		logger:    logger.WithComponent("reporter"),
	}
}

// Run reports until ctx is done
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs and publishes one snapshot and returns it
func (r *Reporter) Report() stats.Snapshot {
	snap := r.source.Stats()

	r.logger.LogStats(
		snap.SharesAccepted,
		snap.SharesRejected,
		snap.CurrentHashrate,
		snap.AvgHashrate,
		snap.EarnedTotal,
		FormatUptime(snap.Uptime()),
		snap.State,
	)

	if r.publisher != nil {
		r.publisher.PublishSnapshot(snap)
	}
	return snap
}

// FormatUptime renders d with its two most significant units
func FormatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}
	return durafmt.Parse(d).LimitFirstN(2).String()
}
