package duco

import (
	"math"
	"reflect"
	"testing"

	"github.com/bardlex/ducominer/internal/pow"
	"github.com/bardlex/ducominer/pkg/errors"
)

func TestMarshalJobRequest(t *testing.T) {
	tests := []struct {
		name string
		req  JobRequest
		want string
	}{
		{
			name: "with mining key",
			req:  JobRequest{Username: "alice", DifficultyHint: "LOW", MiningKey: "secret"},
			want: "JOB,alice,LOW,secret\n",
		},
		{
			name: "empty mining key keeps field",
			req:  JobRequest{Username: "alice", DifficultyHint: "LOW"},
			want: "JOB,alice,LOW,\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarshalJobRequest(tt.req); got != tt.want {
				t.Errorf("MarshalJobRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarshalShare(t *testing.T) {
	tests := []struct {
		name  string
		share Share
		want  string
	}{
		{
			name:  "rounds hashrate to two decimals",
			share: Share{Nonce: 7, Hashrate: 1234.5678, MinerName: "ducominer", RigID: "rig-1"},
			want:  "7,1234.57,ducominer,rig-1\n",
		},
		{
			name:  "empty rig id keeps field",
			share: Share{Nonce: 0, Hashrate: 0, MinerName: "ducominer"},
			want:  "0,0.00,ducominer,\n",
		},
		{
			name:  "large nonce",
			share: Share{Nonce: math.MaxUint32 + 1, Hashrate: 1, MinerName: "m"},
			want:  "4294967296,1.00,m,\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarshalShare(tt.share); got != tt.want {
				t.Errorf("MarshalShare() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJob(t *testing.T) {
	target := "0123456789abcdef0123456789abcdef01234567"

	tests := []struct {
		name    string
		line    string
		want    *pow.Job
		wantErr bool
	}{
		{
			name: "valid job",
			line: "seed," + target + ",10\n",
			want: &pow.Job{Seed: "seed", Target: target, Difficulty: 10},
		},
		{
			name: "crlf terminated",
			line: "seed," + target + ",10\r\n",
			want: &pow.Job{Seed: "seed", Target: target, Difficulty: 10},
		},
		{
			name: "extra fields ignored",
			line: "seed," + target + ",10,extra",
			want: &pow.Job{Seed: "seed", Target: target, Difficulty: 10},
		},
		{
			name:    "two fields",
			line:    "foo,bar\n",
			wantErr: true,
		},
		{
			name:    "empty line",
			line:    "",
			wantErr: true,
		},
		{
			name:    "non numeric difficulty",
			line:    "seed," + target + ",ten",
			wantErr: true,
		},
		{
			name:    "negative difficulty",
			line:    "seed," + target + ",-1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJob(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.IsType(err, errors.ErrorTypeProtocol) {
					t.Errorf("expected protocol error, got %v", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseJob() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseSubmissionResult(t *testing.T) {
	tests := []struct {
		name string
		line string
		want SubmissionResult
	}{
		{
			name: "good with reward",
			line: "GOOD,0.00025\n",
			want: SubmissionResult{Status: StatusGood, Accepted: true, Reward: 0.00025, HasReward: true, RawMessage: "GOOD,0.00025"},
		},
		{
			name: "good without reward",
			line: "GOOD\n",
			want: SubmissionResult{Status: StatusGood, Accepted: true, RawMessage: "GOOD"},
		},
		{
			name: "good with reward and trailing fields",
			line: "GOOD,0.5,extra\n",
			want: SubmissionResult{Status: StatusGood, Accepted: true, Reward: 0.5, HasReward: true, RawMessage: "GOOD,0.5,extra"},
		},
		{
			name: "good with garbage reward",
			line: "GOOD,lots",
			want: SubmissionResult{Status: StatusGood, Accepted: true, RawMessage: "GOOD,lots"},
		},
		{
			name: "bad",
			line: "BAD\n",
			want: SubmissionResult{Status: StatusBad, RawMessage: "BAD"},
		},
		{
			name: "bad with reason",
			line: "BAD,Incorrect result",
			want: SubmissionResult{Status: StatusBad, RawMessage: "BAD,Incorrect result"},
		},
		{
			name: "unknown",
			line: "BLOCK\n",
			want: SubmissionResult{Status: StatusUnknown, RawMessage: "BLOCK"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSubmissionResult(tt.line)
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("ParseSubmissionResult() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestSubmissionResult_Description(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"GOOD,1", "GOOD - Share accepted"},
		{"BAD", "BAD - Share rejected"},
		{"huh", "Unknown response: huh"},
	}

	for _, tt := range tests {
		if got := ParseSubmissionResult(tt.line).Description(); got != tt.want {
			t.Errorf("Description(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func BenchmarkMarshalShare(b *testing.B) {
	share := Share{Nonce: 123456, Hashrate: 98765.4321, MinerName: "ducominer", RigID: "rig"}
	for b.Loop() {
		_ = MarshalShare(share)
	}
}
