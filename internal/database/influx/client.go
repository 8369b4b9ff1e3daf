// Package influx writes share and hashrate time series to InfluxDB.
// Writes are asynchronous and batched by the client library.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/bardlex/ducominer/internal/stats"
)

// Measurement names
const (
	MeasurementShares   = "shares"
	MeasurementHashrate = "hashrate"
)

// Client wraps InfluxDB operations for time-series metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	rig      string
	errs     <-chan error
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	RigID  string
}

// NewClient creates a new InfluxDB client and checks the server is ready
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("influx URL is required")
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(100).SetFlushInterval(1000))

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := checkHealth(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		rig:      cfg.RigID,
		errs:     writeAPI.Errors(),
	}, nil
}

// Close flushes pending points and closes the connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Flush forces all pending writes from the buffer to be sent
func (c *Client) Flush() {
	c.writeAPI.Flush()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	return checkHealth(ctx, c.client)
}

// Errors reports asynchronous write failures
func (c *Client) Errors() <-chan error {
	return c.errs
}

// WriteShare queues a share point
func (c *Client) WriteShare(ev stats.ShareEvent) {
	c.writeAPI.WritePoint(SharePoint(ev))
}

// WriteSnapshot queues a hashrate point
func (c *Client) WriteSnapshot(snap stats.Snapshot) {
	c.writeAPI.WritePoint(HashratePoint(c.rig, snap, time.Now()))
}

// SharePoint builds the point recorded for one submission
func SharePoint(ev stats.ShareEvent) *write.Point {
	tags := map[string]string{
		"username": ev.Username,
		"rig_id":   ev.RigID,
		"status":   ev.Status,
		"accepted": strconv.FormatBool(ev.Accepted),
	}

	fields := map[string]any{
		"difficulty": ev.Difficulty,
		"nonce":      ev.Nonce,
		"hashrate":   ev.Hashrate,
		"elapsed_ms": ev.ElapsedMS,
		"reward":     ev.Reward,
		"count":      1,
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(MeasurementShares, tags, fields, ts)
}

// HashratePoint builds the periodic statistics point for a rig
func HashratePoint(rig string, snap stats.Snapshot, ts time.Time) *write.Point {
	tags := map[string]string{
		"rig_id": rig,
		"state":  snap.State,
	}

	fields := map[string]any{
		"current":         snap.CurrentHashrate,
		"average":         snap.AvgHashrate,
		"difficulty":      snap.CurrentDifficulty,
		"total_hashes":    snap.TotalHashes,
		"shares_accepted": snap.SharesAccepted,
		"shares_rejected": snap.SharesRejected,
		"earned_total":    snap.EarnedTotal,
	}

	return write.NewPoint(MeasurementHashrate, tags, fields, ts)
}

func checkHealth(ctx context.Context, client influxdb2.Client) error {
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	return nil
}
