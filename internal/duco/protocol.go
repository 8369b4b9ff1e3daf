package duco

import (
	"strconv"
	"strings"

	"github.com/bardlex/ducominer/internal/pow"
	"github.com/bardlex/ducominer/pkg/errors"
)

// Pool response prefixes
const (
	ResponseGood = "GOOD"
	ResponseBad  = "BAD"
)

const fieldSeparator = ","

// Status classifies the pool's answer to a submitted share
type Status string

// Share verdicts
const (
	StatusGood    Status = "GOOD"
	StatusBad     Status = "BAD"
	StatusUnknown Status = "UNKNOWN"
)

// JobRequest represents a JOB request line
type JobRequest struct {
	Username       string
	DifficultyHint string
	MiningKey      string
}

// Share represents a solved job ready to be submitted
type Share struct {
	Nonce     uint64
	Hashrate  float64
	MinerName string
	RigID     string
}

// SubmissionResult is the pool's verdict on a share
type SubmissionResult struct {
	Status     Status
	Accepted   bool
	Reward     float64
	HasReward  bool
	RawMessage string
}

// MarshalJobRequest renders "JOB,<username>,<hint>,<key>\n". An empty
// mining key still produces its trailing field.
func MarshalJobRequest(req JobRequest) string {
	sb := getStringBuilder()
	defer putStringBuilder(sb)

	sb.WriteString("JOB")
	sb.WriteString(fieldSeparator)
	sb.WriteString(req.Username)
	sb.WriteString(fieldSeparator)
	sb.WriteString(req.DifficultyHint)
	sb.WriteString(fieldSeparator)
	sb.WriteString(req.MiningKey)
	sb.WriteByte('\n')
	return sb.String()
}

// MarshalShare renders "<nonce>,<hashrate>,<miner>,<rig>\n" with the
// hashrate fixed at two decimals.
func MarshalShare(share Share) string {
	sb := getStringBuilder()
	defer putStringBuilder(sb)

	var num [32]byte
	sb.Write(strconv.AppendUint(num[:0], share.Nonce, 10))
	sb.WriteString(fieldSeparator)
	sb.Write(strconv.AppendFloat(num[:0], share.Hashrate, 'f', 2, 64))
	sb.WriteString(fieldSeparator)
	sb.WriteString(share.MinerName)
	sb.WriteString(fieldSeparator)
	sb.WriteString(share.RigID)
	sb.WriteByte('\n')
	return sb.String()
}

// ParseJob parses "<seed>,<target>,<difficulty>". Fields past the third
// are ignored.
func ParseJob(line string) (*pow.Job, error) {
	line = trimLine(line)
	fields := strings.Split(line, fieldSeparator)
	if len(fields) < 3 {
		return nil, errors.New(errors.ErrorTypeProtocol, "parse_job", "job line has fewer than 3 fields").
			WithContext("fields", len(fields)).
			WithContext("line", line)
	}

	difficulty, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "parse_job", "difficulty is not a decimal integer").
			WithContext("difficulty", fields[2])
	}

	return &pow.Job{
		Seed:       fields[0],
		Target:     fields[1],
		Difficulty: difficulty,
	}, nil
}

// ParseSubmissionResult classifies a response line by prefix. GOOD may
// carry ",<reward>" followed by further fields; an unparsable reward
// leaves HasReward false.
func ParseSubmissionResult(line string) *SubmissionResult {
	line = trimLine(line)
	res := &SubmissionResult{RawMessage: line}

	switch {
	case strings.HasPrefix(line, ResponseGood):
		res.Status = StatusGood
		res.Accepted = true
		if _, after, ok := strings.Cut(line, fieldSeparator); ok {
			field, _, _ := strings.Cut(after, fieldSeparator)
			if reward, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err == nil {
				res.Reward = reward
				res.HasReward = true
			}
		}
	case strings.HasPrefix(line, ResponseBad):
		res.Status = StatusBad
	default:
		res.Status = StatusUnknown
	}

	return res
}

// Description is the short human-readable summary kept as the last message
func (r *SubmissionResult) Description() string {
	switch r.Status {
	case StatusGood:
		return "GOOD - Share accepted"
	case StatusBad:
		return "BAD - Share rejected"
	default:
		return "Unknown response: " + r.RawMessage
	}
}

func trimLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}
