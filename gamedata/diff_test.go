package gamedata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/testutils"
)

func TestBuildChangesConverges(t *testing.T) {
	t.Parallel()

	r := testutils.NewRand(t)
	for i := range 100 {
		a := gamedata.NewStore(nil, gamedata.WithVersionCheck(gamedata.VersionReject))
		mutateRandomly(t, r, a, 5+r.IntN(60))
		b := clone(t, a)
		require.Equal(t, observe(a), observe(b))

		mutateRandomly(t, r, a, r.IntN(10*(1+i%4)))
		mutateRandomly(t, r, b, r.IntN(10*(1+i%4)))

		changes := gamedata.BuildChanges(a, b)
		require.NoError(t, a.ApplyChanges(changes))
		assert.Equal(t, observe(b), observe(a))
		assert.Zero(t, a.Stats().Anomalies)
		requireConsistent(t, a)

		assert.Empty(t, gamedata.BuildChanges(a, b), "converged stores have nothing left to reconcile")
	}
}

func TestBuildChangesOrdering(t *testing.T) {
	t.Parallel()

	base := gamedata.NewStore(nil)
	gone := base.CreateEntity()
	kept := base.CreateEntity()
	require.NoError(t, kept.SetAttribute("this", "a", "1"))

	target := clone(t, base)
	require.NoError(t, target.RemoveEntity(mustEntity(t, target, gone.ID())))
	bag := target.CreateEntity()
	coin := target.CreateEntity()
	require.NoError(t, bag.SetName("Bag"))
	require.NoError(t, bag.Add(coin))
	require.NoError(t, mustEntity(t, target, kept.ID()).Add(bag))

	changes := gamedata.BuildChanges(base, target)
	kinds := make([]gamedata.ChangeKind, len(changes))
	for i, c := range changes {
		kinds[i] = c.Kind
	}
	assert.Equal(t, []gamedata.ChangeKind{
		gamedata.ChangeCreate,
		gamedata.ChangeCreate,
		gamedata.ChangeSetName,
		gamedata.ChangeHoldAdd,
		gamedata.ChangeHoldAdd,
		gamedata.ChangeDelete,
	}, kinds)
	assert.Equal(t, bag.ID(), changes[0].ID)
	assert.Equal(t, coin.ID(), changes[3].Child)
	assert.Equal(t, kept.ID(), changes[4].ID)
	assert.Equal(t, gone.ID(), changes[5].ID)

	require.NoError(t, base.ApplyChanges(changes))
	assert.Equal(t, observe(target), observe(base))
}

func TestBuildChangesShapeChange(t *testing.T) {
	t.Parallel()

	base := gamedata.NewStore(nil)
	e := base.CreateEntity()
	require.NoError(t, e.SetAttribute("this", "tags", "x"))
	require.NoError(t, e.SetAttributeList("this", "path", []string{"a", "b"}))
	require.NoError(t, e.SetAttribute("dark", "move", "2"))

	target := clone(t, base)
	te := mustEntity(t, target, e.ID())
	require.NoError(t, te.RemoveAttribute("this", "tags"))
	require.NoError(t, te.SetAttributeList("this", "tags", []string{"x"}))
	require.NoError(t, te.AddAttributeListItem("this", "path", "c"))
	require.NoError(t, te.RemoveAttributeBlock("dark"))

	changes := gamedata.BuildChanges(base, target)
	require.Len(t, changes, 4)
	assert.Equal(t, gamedata.ChangeDeleteAttribute, changes[0].Kind)
	assert.Equal(t, gamedata.ChangeSetList, changes[1].Kind)
	assert.Equal(t, gamedata.ChangeSetList, changes[2].Kind)
	assert.False(t, changes[2].Clear)
	assert.Equal(t, []string{"c"}, changes[2].Items)
	assert.Equal(t, gamedata.ChangeRemoveBlock, changes[3].Kind)
	for i, c := range changes {
		assert.Equal(t, e.Version()+int64(i), c.Version, "records carry running versions")
	}

	strict := gamedata.NewStore(nil, gamedata.WithVersionCheck(gamedata.VersionReject))
	require.NoError(t, strict.ApplyChanges(gamedata.BuildChanges(strict, base)))
	require.NoError(t, strict.ApplyChanges(gamedata.BuildChanges(strict, target)))
	assert.Equal(t, observe(target), observe(strict))
}

func TestBuildChangesIgnoresPending(t *testing.T) {
	t.Parallel()

	base := gamedata.NewStore(nil)
	target := gamedata.NewStore(nil)
	target.SetTracksChanges(true)
	require.NoError(t, target.CreateEntity().SetName("uncommitted"))

	changes := gamedata.BuildChanges(base, target)
	require.Len(t, changes, 1, "created entities exist immediately, their edits do not")
	assert.Equal(t, gamedata.ChangeCreate, changes[0].Kind)
}
