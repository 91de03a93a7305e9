package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenVisitsEveryCombination(t *testing.T) {
	t.Parallel()

	seen := map[[2]int]bool{}
	for g := NewGen(); !g.Done(); {
		a := g.Intn(2)
		b := g.Intn(1)
		seen[[2]int{a, b}] = true
	}
	assert.Len(t, seen, 6)
}

func TestStringsCoversLengths(t *testing.T) {
	t.Parallel()

	lengths := map[int]int{}
	for g := NewGen(); !g.Done(); {
		lengths[len(Strings(g, []string{"a", "b"}, 2))]++
	}
	// 1 empty, 2 of length one, 4 of length two.
	assert.Equal(t, map[int]int{0: 1, 1: 2, 2: 4}, lengths)
}

func TestRandWeightedOp(t *testing.T) {
	t.Parallel()

	type op uint8
	r := NewRand(t)
	for range 100 {
		got := RandWeightedOp(r, []op{0, 5})
		assert.Equal(t, op(5), got)
	}
}
