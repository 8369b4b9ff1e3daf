// Package validation checks pool-issued DUCO-S1 jobs and locally found
// solutions before they reach the proof search or the wire.
package validation

import (
	"fmt"
	"strings"

	"github.com/bardlex/ducominer/internal/pow"
	"github.com/bardlex/ducominer/pkg/errors"
)

// JobValidator handles validation of jobs and solutions
type JobValidator struct {
	maxDifficulty uint64
}

// NewJobValidator creates a new job validator. maxDifficulty of zero
// disables the upper difficulty check.
func NewJobValidator(maxDifficulty uint64) *JobValidator {
	return &JobValidator{maxDifficulty: maxDifficulty}
}

// ValidateJob performs validation of a job before it is searched
func (v *JobValidator) ValidateJob(job *pow.Job) error {
	if job == nil {
		return errors.New(errors.ErrorTypeValidation, "validate_job", "job is nil")
	}

	if err := v.validateBasicFields(job); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "validate_job", "basic validation failed")
	}

	if err := v.validateDifficulty(job); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "validate_job", "difficulty validation failed")
	}

	return nil
}

// ValidateSolution recomputes the digest for sol and checks it against the
// job target and search bound.
func (v *JobValidator) ValidateSolution(job *pow.Job, sol Solution) error {
	if job == nil {
		return errors.New(errors.ErrorTypeValidation, "validate_solution", "job is nil")
	}

	if bound := pow.Bound(job.Difficulty, sol.Multiplier); sol.Nonce > bound {
		return errors.New(errors.ErrorTypeValidation, "validate_solution", "nonce beyond search bound").
			WithContext("nonce", sol.Nonce).
			WithContext("bound", bound)
	}

	if pow.Digest(job.Seed, sol.Nonce) != job.Target {
		return errors.New(errors.ErrorTypeValidation, "validate_solution", "digest does not match target").
			WithContext("nonce", sol.Nonce)
	}

	return nil
}

// validateBasicFields checks that all required fields are present and valid
func (v *JobValidator) validateBasicFields(job *pow.Job) error {
	if job.Seed == "" {
		return fmt.Errorf("seed is required")
	}

	if len(job.Seed) > MaxSeedLength {
		return fmt.Errorf("seed longer than %d bytes", MaxSeedLength)
	}

	if strings.ContainsAny(job.Seed, ",\n") {
		return fmt.Errorf("seed contains a field separator")
	}

	if len(job.Target) != TargetLength {
		return fmt.Errorf("target must be %d hex characters, got %d", TargetLength, len(job.Target))
	}

	if !isValidHex(job.Target) {
		return fmt.Errorf("target is not valid hex")
	}

	return nil
}

// validateDifficulty checks that the difficulty is within acceptable bounds
func (v *JobValidator) validateDifficulty(job *pow.Job) error {
	if job.Difficulty == 0 {
		return fmt.Errorf("difficulty must be positive")
	}

	if v.maxDifficulty > 0 && job.Difficulty > v.maxDifficulty {
		return fmt.Errorf("difficulty too high: %d > %d", job.Difficulty, v.maxDifficulty)
	}

	return nil
}

// isValidHex accepts either case; case only matters when comparing digests.
func isValidHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
