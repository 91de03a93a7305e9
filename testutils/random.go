// Package testutils contains the randomness helpers used by property tests across the module.
package testutils

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"testing"
	"time"
)

var Seed uint64 //nolint:gochecknoglobals // global for test reproducibility

func init() { //nolint:gochecknoinits // seed must exist before any test runs
	Seed = uint64(time.Now().UnixNano()) //nolint:gosec // it's ok
	if envSeed := os.Getenv("TEST_SEED"); envSeed != "" {
		if parsed, err := strconv.ParseUint(envSeed, 0, 64); err == nil {
			Seed = parsed
		}
	}
	fmt.Printf("to reproduce: TEST_SEED=0x%x\n", Seed) //nolint:forbidigo // just for testing
}

// NewRand returns a generator seeded from TEST_SEED, or from the clock when unset.
func NewRand(t *testing.T) *rand.Rand {
	t.Helper()
	return rand.New(rand.NewPCG(Seed, Seed)) //nolint:gosec // weak RNG is fine for tests
}

// WeightedOp is a constraint for operation types that use their value as the weight.
type WeightedOp interface {
	~uint8 | ~uint16 | ~uint32 | ~int
}

// RandWeightedOp returns a random operation from a slice, using each op's value as its weight.
func RandWeightedOp[T WeightedOp](r *rand.Rand, ops []T) T {
	var total int
	for _, op := range ops {
		total += int(op)
	}

	pick := r.IntN(total)
	for _, op := range ops {
		if pick < int(op) {
			return op
		}
		pick -= int(op)
	}
	panic("unreachable")
}

// RandFrom returns a random element of vocab.
func RandFrom[T any](r *rand.Rand, vocab []T) T {
	return vocab[r.IntN(len(vocab))]
}

// RandStrings returns up to maxLen strings drawn from vocab. The result may be empty.
func RandStrings(r *rand.Rand, vocab []string, maxLen int) []string {
	n := r.IntN(maxLen + 1)
	out := make([]string, n)
	for i := range out {
		out[i] = RandFrom(r, vocab)
	}
	return out
}
