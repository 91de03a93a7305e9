package testutils

import "github.com/argus-labs/tabletop/assert"

// Gen walks every combination of the choices a test body makes, one combination per iteration:
//
//	for g := testutils.NewGen(); !g.Done(); {
//		n := g.Intn(3)
//		...
//	}
//
// Each call records a (value, bound) pair. Done advances the rightmost pair that is still below
// its bound and drops everything after it, so later choices are regenerated from zero.
// See <https://matklad.github.io/2021/11/07/generate-all-the-things.html>.
type Gen struct {
	started bool
	v       [32]struct{ value, bound uint32 }
	p       int
	pMax    int
}

func NewGen() *Gen {
	return &Gen{}
}

// Done returns true when all combinations have been exhausted.
func (g *Gen) Done() bool {
	if !g.started {
		g.started = true
		return false
	}
	for i := g.pMax - 1; i >= 0; i-- {
		if g.v[i].value < g.v[i].bound {
			g.v[i].value++
			g.pMax = i + 1
			g.p = 0
			return false
		}
	}
	return true
}

func (g *Gen) gen(bound uint32) uint32 {
	assert.That(g.p < len(g.v), "exhaustigen: exceeded maximum depth of %d", len(g.v))
	if g.p == g.pMax {
		g.v[g.p] = struct{ value, bound uint32 }{}
		g.pMax++
	}
	g.v[g.p].bound = bound
	g.p++
	return g.v[g.p-1].value
}

// Intn returns an int in range [0, bound] (inclusive).
func (g *Gen) Intn(bound int) int {
	return int(g.gen(uint32(bound))) //nolint:gosec // bound is small in tests
}

// Bool returns both booleans across iterations.
func (g *Gen) Bool() bool {
	return g.Intn(1) == 1
}

// Strings returns a slice of length [0, maxLen] whose elements range over vocab.
func Strings(g *Gen, vocab []string, maxLen int) []string {
	n := g.Intn(maxLen)
	out := make([]string, n)
	for i := range out {
		out[i] = vocab[g.Intn(len(vocab)-1)]
	}
	return out
}
