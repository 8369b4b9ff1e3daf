// Package miner runs the DUCO-S1 mining loop: connect, fetch a job,
// search for its nonce, submit, repeat. A Worker owns the pool session,
// the job in flight and the hash counter, and exposes Start, Stop, State
// and Stats to the rest of the process.
package miner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/ducominer/internal/config"
	"github.com/bardlex/ducominer/internal/duco"
	"github.com/bardlex/ducominer/internal/pow"
	"github.com/bardlex/ducominer/internal/stats"
	"github.com/bardlex/ducominer/internal/validation"
	"github.com/bardlex/ducominer/pkg/errors"
	"github.com/bardlex/ducominer/pkg/log"
	"github.com/bardlex/ducominer/pkg/retry"
)

// Connector opens pool sessions; *duco.Dialer implements it
type Connector interface {
	Connect(ctx context.Context, params config.ConnectionParams) (*duco.Session, error)
}

// ShareRecorder receives every submission outcome. RecordShare is called
// from the mining loop and must not block.
type ShareRecorder interface {
	RecordShare(ev stats.ShareEvent)
}

// run is one Start..Stop lifetime of the mining loop
type run struct {
	cancel context.CancelFunc
	done   chan struct{}

	// detached is set by Stop when the loop outlived StopTimeout. A
	// detached loop must not publish state or stats.
	detached bool

	sessMu  sync.Mutex
	session *duco.Session
}

func (r *run) setSession(s *duco.Session) {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	r.session = s
}

func (r *run) closeSession() {
	r.sessMu.Lock()
	s := r.session
	r.session = nil
	r.sessMu.Unlock()
	duco.Disconnect(s)
}

// Worker drives the mining state machine
type Worker struct {
	cfg       Config
	connector Connector
	recorder  ShareRecorder
	validator *validation.JobValidator
	logger    *log.Logger

	stats  *stats.Aggregator
	hashes atomic.Uint64
	state  atomic.Int32
	cycles atomic.Uint64

	// mu guards run
	mu  sync.Mutex
	run *run

	// pubMu serialises every write to state and stats against detachment
	pubMu     sync.Mutex
	startedAt time.Time
}

// NewWorker creates an idle worker. recorder may be nil.
func NewWorker(cfg Config, connector Connector, recorder ShareRecorder, logger *log.Logger) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		cfg:       cfg,
		connector: connector,
		recorder:  recorder,
		validator: validation.NewJobValidator(0),
		logger:    logger.WithComponent("miner").WithMiner(cfg.Params.Username, cfg.RigID),
		stats:     stats.NewAggregator(StateIdle.String()),
	}
}

// Start launches the mining loop. It returns a configuration error when
// the connection parameters are invalid and nil when the loop is already
// running.
func (w *Worker) Start() error {
	if err := w.cfg.Params.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.run != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}
	w.run = r

	w.pubMu.Lock()
	w.startedAt = time.Now()
	w.pubMu.Unlock()

	w.setState(r, StateConnecting)
	w.logger.Info("mining started", "pool", w.cfg.Params.Address())

	go w.loop(ctx, r)
	return nil
}

// Stop cancels the mining loop and waits up to StopTimeout for it to exit.
// If it does not, the loop is detached: its session is closed here and the
// worker reports Idle immediately. Stop on an idle worker is a no-op.
func (w *Worker) Stop() error {
	w.mu.Lock()
	r := w.run
	w.mu.Unlock()

	if r == nil {
		return nil
	}

	r.cancel()

	timer := time.NewTimer(w.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
	case <-timer.C:
		w.logger.Warn("mining loop did not stop in time, detaching", "timeout", w.cfg.StopTimeout)
		w.detach(r)
	}

	w.mu.Lock()
	if w.run == r {
		w.run = nil
	}
	w.mu.Unlock()

	w.logger.Info("mining stopped")
	return nil
}

// Running reports whether a mining loop is active
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.run != nil
}

// State returns the current state
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Stats returns a consistent statistics snapshot
func (w *Worker) Stats() stats.Snapshot {
	snap := w.stats.Snapshot()
	snap.TotalHashes = w.hashes.Load()
	return snap
}

// TotalHashes returns every nonce attempted since the worker was created
func (w *Worker) TotalHashes() uint64 {
	return w.hashes.Load()
}

func (w *Worker) detach(r *run) {
	w.pubMu.Lock()
	r.detached = true
	w.state.Store(int32(StateIdle))
	w.stats.SetState(StateIdle.String())
	w.pubMu.Unlock()

	r.closeSession()
}

// publish runs fn unless r has been detached
func (w *Worker) publish(r *run, fn func()) {
	w.pubMu.Lock()
	defer w.pubMu.Unlock()
	if r.detached {
		return
	}
	fn()
}

func (w *Worker) setState(r *run, s State) {
	w.publish(r, func() {
		if State(w.state.Swap(int32(s))) != s {
			w.logger.Debug("state changed", "state", s.String())
		}
		w.stats.SetState(s.String())
	})
}

func (w *Worker) refresh(r *run) {
	w.publish(r, func() {
		w.stats.Refresh(w.hashes.Load(), time.Since(w.startedAt))
	})
}

func (w *Worker) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer func() {
		r.closeSession()
		w.refresh(r)

		// Idle is published before the run is released; once released,
		// the state belongs to the next Start.
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.run == r {
			w.setState(r, StateIdle)
			w.run = nil
		}
	}()

	for ctx.Err() == nil {
		session, err := w.connect(ctx, r)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.WithError(err).Error("giving up on pool connection")
				w.publish(r, func() { w.stats.SetLastMessage("connect failed: " + err.Error()) })
			}
			return
		}

		r.setSession(session)
		if ctx.Err() != nil {
			return
		}
		w.setState(r, StateConnected)
		w.publish(r, func() {
			w.stats.SetLastMessage("connected to " + session.RemoteAddr() + ", pool version " + session.Greeting())
		})

		err = w.mine(ctx, r, session)
		r.closeSession()
		w.refresh(r)

		if ctx.Err() != nil {
			return
		}

		w.logger.WithError(err).Warn("job cycle failed, reconnecting", "backoff", w.cfg.JobBackoff)
		w.setState(r, StateConnecting)
		w.publish(r, func() { w.stats.SetLastMessage("job failed: " + err.Error()) })

		if err := retry.Sleep(ctx, w.cfg.JobBackoff); err != nil {
			return
		}
	}
}

// connect dials until it succeeds, holding StateError for the fixed
// backoff after every failure.
func (w *Worker) connect(ctx context.Context, r *run) (*duco.Session, error) {
	policy := retry.FixedConfig(w.cfg.ConnectBackoff)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		w.logger.WithError(err).Warn("pool connection failed", "attempt", attempt, "retry_in", delay)
		w.setState(r, StateError)
		w.publish(r, func() { w.stats.SetLastMessage("connect failed: " + err.Error()) })
	}

	return retry.DoWithResult(ctx, policy, func() (*duco.Session, error) {
		w.setState(r, StateConnecting)
		session, err := w.connector.Connect(ctx, w.cfg.Params)
		if err != nil && ctx.Err() == nil && !errors.IsRetryable(err) {
			// Only Stop ends the connect loop
			se := errors.Wrap(err, errors.ErrorTypeNetwork, "connect", "pool connection failed")
			se.Retryable = true
			return nil, se
		}
		return session, err
	})
}

// mine runs job cycles on one session until one fails or ctx ends
func (w *Worker) mine(ctx context.Context, r *run, session *duco.Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cycleCtx := context.WithValue(ctx, log.CycleIDKey, w.cycles.Add(1))
		if err := w.cycle(cycleCtx, r, session); err != nil {
			return err
		}

		w.refresh(r)

		if err := retry.Sleep(ctx, w.cfg.JobInterval); err != nil {
			return err
		}
	}
}

// cycle performs one request, search and submit exchange
func (w *Worker) cycle(ctx context.Context, r *run, session *duco.Session) error {
	logger := w.logger.WithContext(ctx)

	job, err := session.RequestJob(ctx, duco.JobRequest{
		Username:       w.cfg.Params.Username,
		DifficultyHint: w.cfg.DifficultyHint,
		MiningKey:      w.cfg.Params.MiningKey,
	})
	if err != nil {
		return err
	}

	w.setState(r, StateMining)
	w.publish(r, func() { w.stats.SetDifficulty(job.Difficulty) })
	logger.LogJob(job.Seed, job.Target, job.Difficulty)

	res, err := pow.Search(ctx, *job, pow.Options{
		Multiplier: w.cfg.SearchMultiplier,
		BatchSize:  w.cfg.SearchBatch,
		Counter:    &w.hashes,
	})
	if err != nil {
		if pow.IsCancelled(err) {
			return err
		}
		logger.WithError(err).Warn("no nonce found within bound")
		return err
	}

	if err := w.validator.ValidateSolution(job, validation.Solution{Nonce: res.Nonce, Multiplier: w.cfg.SearchMultiplier}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "mine", "search returned an invalid solution")
	}

	w.publish(r, func() { w.stats.SetHashrate(res.Hashrate) })
	logger.Debug("share found", "nonce", res.Nonce, "hashrate", res.Hashrate, "elapsed", res.Elapsed)

	verdict, err := session.SubmitResult(ctx, duco.Share{
		Nonce:     res.Nonce,
		Hashrate:  res.Hashrate,
		MinerName: w.cfg.MinerName,
		RigID:     w.cfg.RigID,
	})
	if err != nil {
		return err
	}

	w.publish(r, func() { w.stats.RecordSubmission(verdict) })
	logger.LogShareSubmission(res.Nonce, res.Hashrate, string(verdict.Status), verdict.Reward)

	if w.recorder != nil {
		w.recorder.RecordShare(stats.ShareEvent{
			Username:   w.cfg.Params.Username,
			MinerName:  w.cfg.MinerName,
			RigID:      w.cfg.RigID,
			Seed:       job.Seed,
			Difficulty: job.Difficulty,
			Nonce:      res.Nonce,
			Hashrate:   res.Hashrate,
			ElapsedMS:  res.Elapsed.Milliseconds(),
			Status:     string(verdict.Status),
			Accepted:   verdict.Accepted,
			Reward:     verdict.Reward,
			Response:   verdict.RawMessage,
			Timestamp:  time.Now(),
		})
	}

	return nil
}
