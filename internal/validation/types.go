package validation

// Limits applied to pool-issued work
const (
	// TargetLength is the hex length of a SHA-1 digest.
	TargetLength = 40
	// MaxSeedLength bounds the seed so a hostile pool cannot make every
	// attempt hash megabytes.
	MaxSeedLength = 1024
)

// Solution is a nonce found for a job, checked before it is submitted
type Solution struct {
	Nonce      uint64
	Multiplier uint64
}
