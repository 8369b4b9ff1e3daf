// Package pow implements the DUCO-S1 proof search: a bounded, ascending
// brute-force scan for the nonce whose SHA-1 digest of seed+nonce matches
// the job target.
package pow

import (
	"context"
	"crypto/sha1" //nolint:gosec // DUCO-S1 is defined over SHA-1
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bardlex/ducominer/pkg/errors"
)

// Search defaults
const (
	DefaultMultiplier uint64 = 100
	DefaultBatchSize  uint64 = 1000
	DigestLength             = sha1.Size * 2
)

var (
	// ErrCancelled is returned when the context was cancelled mid-search.
	ErrCancelled = stderrors.New("proof search cancelled")
	// ErrExhausted is the cause of the error returned when no nonce within
	// the bound matched.
	ErrExhausted = stderrors.New("proof search exhausted")
)

// Job is a unit of work issued by the pool
type Job struct {
	Seed       string
	Target     string
	Difficulty uint64
}

// Options tune a single search
type Options struct {
	// Multiplier scales difficulty into the inclusive nonce bound.
	Multiplier uint64
	// BatchSize is the number of attempts between cancellation checks.
	BatchSize uint64
	// Counter, when set, receives one increment per attempted nonce.
	Counter *atomic.Uint64
}

// Result describes a successful search
type Result struct {
	Nonce    uint64
	Hashrate float64
	Elapsed  time.Duration
	Attempts uint64
}

func (o Options) withDefaults() Options {
	if o.Multiplier == 0 {
		o.Multiplier = DefaultMultiplier
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Bound returns the largest nonce a search for difficulty will evaluate.
// It saturates instead of overflowing.
func Bound(difficulty, multiplier uint64) uint64 {
	if multiplier == 0 {
		multiplier = DefaultMultiplier
	}
	if difficulty > math.MaxUint64/multiplier {
		return math.MaxUint64
	}
	return difficulty * multiplier
}

// Digest returns the lowercase hex SHA-1 of seed followed by the decimal
// nonce.
func Digest(seed string, nonce uint64) string {
	buf := make([]byte, 0, len(seed)+20)
	buf = append(buf, seed...)
	buf = strconv.AppendUint(buf, nonce, 10)
	sum := sha1.Sum(buf) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Search scans nonces 0..Bound(job.Difficulty, opts.Multiplier) in
// ascending order and returns the first whose digest equals job.Target.
// The comparison is case-sensitive against the lowercase digest.
//
// The context is polled before every batch of opts.BatchSize attempts.
// A cancelled search returns an error wrapping both ErrCancelled and the
// context error; an exhausted one returns an exhausted ServiceError
// wrapping ErrExhausted.
func Search(ctx context.Context, job Job, opts Options) (Result, error) {
	opts = opts.withDefaults()
	bound := Bound(job.Difficulty, opts.Multiplier)

	target := []byte(job.Target)
	buf := make([]byte, 0, len(job.Seed)+20)
	buf = append(buf, job.Seed...)
	seedLen := len(buf)
	var digest [DigestLength]byte

	start := time.Now()
	var pending uint64
	flush := func() {
		if opts.Counter != nil && pending > 0 {
			opts.Counter.Add(pending)
		}
		pending = 0
	}

	for nonce := uint64(0); ; nonce++ {
		if nonce%opts.BatchSize == 0 {
			flush()
			if err := ctx.Err(); err != nil {
				return Result{}, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
		}

		buf = strconv.AppendUint(buf[:seedLen], nonce, 10)
		sum := sha1.Sum(buf) //nolint:gosec
		hex.Encode(digest[:], sum[:])
		pending++

		if len(target) == DigestLength && string(digest[:]) == string(target) {
			flush()
			elapsed := time.Since(start)
			return Result{
				Nonce:    nonce,
				Hashrate: rate(nonce, elapsed),
				Elapsed:  elapsed,
				Attempts: nonce + 1,
			}, nil
		}

		if nonce == bound {
			break
		}
	}

	flush()
	return Result{}, errors.Wrap(ErrExhausted, errors.ErrorTypeExhausted, "proof_search",
		"no nonce within bound matched target").
		WithContext("difficulty", job.Difficulty).
		WithContext("bound", bound)
}

// rate is nonce per elapsed second, zero when no measurable time passed.
func rate(nonce uint64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(nonce) / secs
}

// IsCancelled reports whether err came from a cancelled search.
func IsCancelled(err error) bool {
	return stderrors.Is(err, ErrCancelled)
}
