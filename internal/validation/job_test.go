package validation

import (
	"strings"
	"testing"

	"github.com/bardlex/ducominer/internal/pow"
	"github.com/bardlex/ducominer/pkg/errors"
)

func TestValidateJob(t *testing.T) {
	validator := NewJobValidator(1_000_000)
	target := pow.Digest("seed", 3)

	tests := []struct {
		name    string
		job     *pow.Job
		wantErr bool
	}{
		{"valid", &pow.Job{Seed: "seed", Target: target, Difficulty: 1}, false},
		{"uppercase target", &pow.Job{Seed: "seed", Target: strings.ToUpper(target), Difficulty: 1}, false},
		{"nil job", nil, true},
		{"empty seed", &pow.Job{Target: target, Difficulty: 1}, true},
		{"oversized seed", &pow.Job{Seed: strings.Repeat("a", MaxSeedLength+1), Target: target, Difficulty: 1}, true},
		{"seed with comma", &pow.Job{Seed: "a,b", Target: target, Difficulty: 1}, true},
		{"short target", &pow.Job{Seed: "seed", Target: target[:39], Difficulty: 1}, true},
		{"non hex target", &pow.Job{Seed: "seed", Target: strings.Repeat("g", TargetLength), Difficulty: 1}, true},
		{"zero difficulty", &pow.Job{Seed: "seed", Target: target}, true},
		{"difficulty too high", &pow.Job{Seed: "seed", Target: target, Difficulty: 1_000_001}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateJob(tt.job)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsType(err, errors.ErrorTypeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateJob_NoUpperLimit(t *testing.T) {
	validator := NewJobValidator(0)
	job := &pow.Job{Seed: "seed", Target: pow.Digest("seed", 1), Difficulty: 1 << 40}
	if err := validator.ValidateJob(job); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateSolution(t *testing.T) {
	validator := NewJobValidator(0)
	job := &pow.Job{Seed: "ABCD", Target: pow.Digest("ABCD", 7), Difficulty: 1}

	tests := []struct {
		name    string
		sol     Solution
		wantErr bool
	}{
		{"correct nonce", Solution{Nonce: 7}, false},
		{"wrong nonce", Solution{Nonce: 8}, true},
		{"beyond bound", Solution{Nonce: 7, Multiplier: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateSolution(job, tt.sol)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSolution() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidHex(t *testing.T) {
	if !isValidHex("0123456789abcdefABCDEF") {
		t.Error("expected hex digits to be valid")
	}
	if isValidHex("xyz") {
		t.Error("expected non-hex to be invalid")
	}
}
