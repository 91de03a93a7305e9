package setup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/query"
	"github.com/argus-labs/tabletop/setup"
)

// newHoard creates 10 treasures, 4 of them cursed, plus 3 plain rocks.
func newHoard(t *testing.T) (*gamedata.Store, *setup.Pools, *setup.Pool) {
	t.Helper()

	s := gamedata.NewStore(nil)
	for i := range 10 {
		e := s.CreateEntity()
		require.NoError(t, e.SetName("Coin"))
		require.NoError(t, e.SetAttribute("this", "treasure", ""))
		if i%3 == 0 {
			require.NoError(t, e.SetAttribute("this", "cursed", ""))
		}
	}
	for range 3 {
		e := s.CreateEntity()
		require.NoError(t, e.SetName("Rock"))
	}

	pools := setup.NewPools(s, 42)
	p, err := pools.CreatePool("P")
	require.NoError(t, err)
	p.Add(s.Entities()...)
	return s, pools, p
}

func TestExtractTreasure(t *testing.T) {
	t.Parallel()

	_, _, p := newHoard(t)
	size := p.Size()

	taken := p.Extract(query.MustParse("treasure,!cursed"), 3)
	require.Len(t, taken, 3)
	for _, e := range taken {
		assert.True(t, e.HasAttribute("this", "treasure"))
		assert.False(t, e.HasAttribute("this", "cursed"))
		assert.NotContains(t, p.Entities(), e)
	}
	assert.Equal(t, size-3, p.Size())

	// Pool order picks the first matches.
	assert.Equal(t, []gamedata.ID{1, 2, 4}, []gamedata.ID{taken[0].ID(), taken[1].ID(), taken[2].ID()})

	rest := p.Extract(query.MustParse("treasure,!cursed"), 0)
	assert.Len(t, rest, 3)
	assert.Equal(t, size-6, p.Size())
	assert.Empty(t, p.Extract(query.MustParse("treasure,!cursed"), 0))
}

func TestPickModes(t *testing.T) {
	t.Parallel()

	ids := func(es []*gamedata.Entity) []gamedata.ID {
		out := make([]gamedata.ID, 0, len(es))
		for _, e := range es {
			out = append(out, e.ID())
		}
		return out
	}

	t.Run("from start", func(t *testing.T) {
		t.Parallel()
		_, _, p := newHoard(t)
		assert.Equal(t, []gamedata.ID{0, 1}, ids(p.Pick(2, setup.ModeFromStart)))
		assert.Equal(t, 11, p.Size())
	})

	t.Run("from end", func(t *testing.T) {
		t.Parallel()
		_, _, p := newHoard(t)
		assert.Equal(t, []gamedata.ID{12, 11}, ids(p.Pick(2, setup.ModeFromEnd)))
		assert.Equal(t, 11, p.Size())
	})

	t.Run("random is seeded", func(t *testing.T) {
		t.Parallel()
		_, _, a := newHoard(t)
		_, _, b := newHoard(t)
		pickedA := ids(a.Pick(5, setup.ModeRandom))
		assert.Equal(t, pickedA, ids(b.Pick(5, setup.ModeRandom)))
		assert.Len(t, pickedA, 5)
		assert.Equal(t, 8, a.Size())
		for _, id := range pickedA {
			assert.NotContains(t, ids(a.Entities()), id)
		}
	})

	t.Run("more than available", func(t *testing.T) {
		t.Parallel()
		_, _, p := newHoard(t)
		assert.Len(t, p.Pick(100, setup.ModeRandom), 13)
		assert.Zero(t, p.Size())
		assert.Empty(t, p.Pick(1, setup.ModeFromStart))
	})
}

func TestDistribute(t *testing.T) {
	t.Parallel()

	s, pools, p := newHoard(t)
	players, err := pools.CreatePool("players")
	require.NoError(t, err)
	var holders []*gamedata.Entity
	for range 3 {
		holders = append(holders, s.CreateEntity())
	}
	players.Add(holders...)

	dealt, err := p.Distribute(players, 2, setup.ModeFromStart)
	require.NoError(t, err)
	assert.Equal(t, 6, dealt)

	// Dealt round-robin: one per holder per round.
	assert.Equal(t, []gamedata.ID{0, 3}, holders[0].HoldIDs())
	assert.Equal(t, []gamedata.ID{1, 4}, holders[1].HoldIDs())
	assert.Equal(t, []gamedata.ID{2, 5}, holders[2].HoldIDs())
	assert.Equal(t, 7, p.Size())

	// Running dry stops early.
	dealt, err = p.Distribute(players, 5, setup.ModeFromEnd)
	require.NoError(t, err)
	assert.Equal(t, 7, dealt)
	assert.Zero(t, p.Size())
	assert.Len(t, holders[0].Hold(), 5)
	assert.Len(t, holders[2].Hold(), 4)
}

func TestShuffle(t *testing.T) {
	t.Parallel()

	_, _, a := newHoard(t)
	_, _, b := newHoard(t)
	before := a.Entities()
	a.Shuffle()
	b.Shuffle()
	assert.ElementsMatch(t, before, a.Entities())

	var orderA, orderB []gamedata.ID
	for i := range a.Size() {
		orderA = append(orderA, a.Entities()[i].ID())
		orderB = append(orderB, b.Entities()[i].ID())
	}
	assert.Equal(t, orderA, orderB)
}

func TestPoolsRegistry(t *testing.T) {
	t.Parallel()

	_, pools, p := newHoard(t)
	_, err := pools.CreatePool("P")
	require.ErrorIs(t, err, setup.ErrPoolExists)
	_, err = pools.CreatePool("")
	require.ErrorIs(t, err, setup.ErrInvalidParam)

	got, err := pools.Pool("P")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = pools.Pool("missing")
	require.ErrorIs(t, err, setup.ErrPoolNotFound)
	created, err := pools.Ensure("missing")
	require.NoError(t, err)
	assert.Zero(t, created.Size())
	assert.Equal(t, 2, pools.Len())

	pools.Drop("missing")
	assert.Equal(t, 1, pools.Len())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, m := range []setup.Mode{setup.ModeRandom, setup.ModeFromStart, setup.ModeFromEnd} {
		parsed, err := setup.ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	m, err := setup.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, setup.ModeRandom, m)
	m, err = setup.ParseMode("END")
	require.NoError(t, err)
	assert.Equal(t, setup.ModeFromEnd, m)
	_, err = setup.ParseMode("middle")
	require.ErrorIs(t, err, setup.ErrInvalidParam)
}
