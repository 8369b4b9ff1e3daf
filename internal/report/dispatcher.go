package report

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/bardlex/ducominer/internal/stats"
	"github.com/bardlex/ducominer/pkg/log"
)

// ShareSink persists or forwards share events
type ShareSink interface {
	Name() string
	WriteShare(ctx context.Context, ev stats.ShareEvent) error
}

// SnapshotSink persists or forwards periodic statistics snapshots
type SnapshotSink interface {
	Name() string
	WriteSnapshot(ctx context.Context, snap stats.Snapshot) error
}

// DispatcherConfig sizes the async fan-out
type DispatcherConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// DefaultDispatcherConfig returns sensible defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:    256,
		Workers:      4,
		WriteTimeout: 5 * time.Second,
	}
}

// DispatcherStats counts queue activity
type DispatcherStats struct {
	Enqueued uint64 `json:"enqueued"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
}

type item struct {
	share    *stats.ShareEvent
	snapshot *stats.Snapshot
}

// Dispatcher queues share events and snapshots and hands them to the
// sinks on a small worker pool, so a slow sink never stalls mining.
type Dispatcher struct {
	cfg       DispatcherConfig
	shares    []ShareSink
	snapshots []SnapshotSink
	logger    *log.Logger

	queue chan item
	wg    sizedwaitgroup.SizedWaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// NewDispatcher creates a dispatcher; call Start before enqueueing
func NewDispatcher(cfg DispatcherConfig, shares []ShareSink, snapshots []SnapshotSink, logger *log.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	return &Dispatcher{
		cfg:       cfg,
		shares:    shares,
		snapshots: snapshots,
		logger:    logger.WithComponent("dispatcher"),
		queue:     make(chan item, cfg.QueueSize),
		wg:        sizedwaitgroup.New(cfg.Workers),
	}
}

// Start launches the workers. Sink writes derive their context from ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add()
		go d.worker(ctx, i)
	}
	d.logger.Info("started sink workers",
		"count", d.cfg.Workers,
		"share_sinks", len(d.shares),
		"snapshot_sinks", len(d.snapshots))
}

// RecordShare enqueues ev without blocking; it is dropped when the queue
// is full or the dispatcher is closed.
func (d *Dispatcher) RecordShare(ev stats.ShareEvent) {
	if len(d.shares) == 0 {
		return
	}
	d.enqueue(item{share: &ev})
}

// PublishSnapshot enqueues snap without blocking
func (d *Dispatcher) PublishSnapshot(snap stats.Snapshot) {
	if len(d.snapshots) == 0 {
		return
	}
	d.enqueue(item{snapshot: &snap})
}

func (d *Dispatcher) enqueue(it item) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.queue <- it:
		d.enqueued.Add(1)
	default:
		d.dropped.Add(1)
		d.logger.Warn("sink queue full, dropping event")
	}
}

// Close stops accepting events, drains the queue and waits for workers
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
}

// Stats returns the queue counters
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Enqueued: d.enqueued.Load(),
		Dropped:  d.dropped.Load(),
		Failed:   d.failed.Load(),
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for it := range d.queue {
		var writes sync.WaitGroup
		switch {
		case it.share != nil:
			for _, sink := range d.shares {
				writes.Add(1)
				go func() {
					defer writes.Done()
					d.write(ctx, id, sink.Name(), func(ctx context.Context) error {
						return sink.WriteShare(ctx, *it.share)
					})
				}()
			}
		case it.snapshot != nil:
			for _, sink := range d.snapshots {
				writes.Add(1)
				go func() {
					defer writes.Done()
					d.write(ctx, id, sink.Name(), func(ctx context.Context) error {
						return sink.WriteSnapshot(ctx, *it.snapshot)
					})
				}()
			}
		}
		// All sinks finish an item before the worker takes the next one
		writes.Wait()
	}
}

func (d *Dispatcher) write(ctx context.Context, workerID int, sink string, fn func(context.Context) error) {
	writeCtx, cancel := context.WithTimeout(ctx, d.cfg.WriteTimeout)
	defer cancel()

	if err := fn(writeCtx); err != nil {
		d.failed.Add(1)
		d.logger.WithError(err).Warn("sink write failed", "sink", sink, "worker_id", workerID)
	}
}
