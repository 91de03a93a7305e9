package setup_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/setup"
	"github.com/argus-labs/tabletop/snapshot"
)

const dungeonYAML = `
setups:
  - name: dungeon
    commands:
      - type: create
        attributes:
          - {key: pool, value: loot}
          - {key: query, value: treasure}
      - type: create
        attributes:
          - {key: pool, value: chests}
          - {key: query, value: "name=Chest"}
      - type: extract
        attributes:
          - {key: from, value: loot}
          - {key: to, value: cursed}
          - {key: query, value: cursed}
      - type: Distribute
        attributes:
          - {key: from, value: loot}
          - {key: to, value: chests}
          - {key: count, value: "2"}
          - {key: mode, value: start}
      - type: addTo
        attributes:
          - {key: from, value: cursed}
          - {key: target, value: "0"}
          - {key: count, value: "1"}
          - {key: mode, value: end}
`

// newDungeon creates a dragon (id 0), two chests and six treasures, two of them cursed.
func newDungeon(t *testing.T) *gamedata.Store {
	t.Helper()

	s := gamedata.NewStore(nil)
	dragon := s.CreateEntity()
	require.NoError(t, dragon.SetName("Dragon"))
	for range 2 {
		require.NoError(t, s.CreateEntity().SetName("Chest"))
	}
	for i := range 6 {
		e := s.CreateEntity()
		require.NoError(t, e.SetName("Gem"))
		require.NoError(t, e.SetAttribute("this", "treasure", "yes"))
		if i >= 4 {
			require.NoError(t, e.SetAttribute("this", "cursed", "yes"))
		}
	}
	return s
}

func TestRunYAMLSetup(t *testing.T) {
	t.Parallel()

	setups, err := setup.ParseYAML([]byte(dungeonYAML))
	require.NoError(t, err)
	dungeon, err := setup.Find(setups, "dungeon")
	require.NoError(t, err)
	require.Len(t, dungeon.Commands, 5)

	s := newDungeon(t)
	s.SetTracksChanges(true)
	runner := setup.NewRunner(s, 1)
	require.NoError(t, runner.Run(dungeon))
	require.NoError(t, s.Commit())

	chests := s.FindByName("Chest")
	require.Len(t, chests, 2)
	assert.Equal(t, []gamedata.ID{3, 5}, chests[0].HoldIDs())
	assert.Equal(t, []gamedata.ID{4, 6}, chests[1].HoldIDs())

	dragon, err := s.Entity(0)
	require.NoError(t, err)
	assert.Equal(t, []gamedata.ID{8}, dragon.HoldIDs())

	cursed, err := runner.Pools().Pool("cursed")
	require.NoError(t, err)
	assert.Equal(t, 1, cursed.Size())
	loot, err := runner.Pools().Pool("loot")
	require.NoError(t, err)
	assert.Zero(t, loot.Size())
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	run := func() []snapshot.Object {
		s := newDungeon(t)
		runner := setup.NewRunner(s, 99)
		require.NoError(t, runner.Run(setup.Setup{Name: "random", Commands: []setup.Command{
			setup.Create{Pool: "gems", Query: "name=Gem"},
			setup.Create{Pool: "chests", Query: "name=Chest"},
			setup.Distribute{From: "gems", To: "chests", Count: 3, Mode: setup.ModeRandom},
		}}))
		return snapshot.Capture(s).Objects
	}
	assert.Equal(t, run(), run())
}

func TestRunFailureRollsBack(t *testing.T) {
	t.Parallel()

	s := newDungeon(t)
	s.SetTracksChanges(true)
	before := snapshot.Capture(s)

	runner := setup.NewRunner(s, 1)
	err := runner.Run(setup.Setup{Name: "broken", Commands: []setup.Command{
		setup.Create{Pool: "gems", Query: "treasure"},
		setup.AddTo{From: "gems", Target: 0, Count: 2, Mode: setup.ModeFromStart},
		setup.Move{From: "nowhere", To: "gems", Count: 1},
	}})
	require.ErrorIs(t, err, setup.ErrPoolNotFound)
	assert.Empty(t, s.Pending())

	dragon, err := s.Entity(0)
	require.NoError(t, err)
	assert.Empty(t, dragon.HoldIDs())
	assert.Equal(t, before, snapshot.Capture(s))
}

func TestCreateFromPool(t *testing.T) {
	t.Parallel()

	s := newDungeon(t)
	runner := setup.NewRunner(s, 1)
	require.NoError(t, runner.Run(setup.Setup{Name: "pools", Commands: []setup.Command{
		setup.Create{Pool: "all"},
		setup.Create{Pool: "safe", From: "all", Query: "treasure,!cursed"},
		setup.Move{From: "safe", To: "picked", Count: 3, Mode: setup.ModeFromEnd},
	}}))

	all, err := runner.Pools().Pool("all")
	require.NoError(t, err)
	assert.Equal(t, s.Len(), all.Size())

	safe, err := runner.Pools().Pool("safe")
	require.NoError(t, err)
	assert.Equal(t, 1, safe.Size())
	picked, err := runner.Pools().Pool("picked")
	require.NoError(t, err)
	assert.Equal(t, 3, picked.Size())
	assert.Equal(t, gamedata.ID(6), picked.Entities()[0].ID())
}

func TestCommandEncoding(t *testing.T) {
	t.Parallel()

	commands := []setup.Command{
		setup.Create{Pool: "loot", From: "all", Query: "treasure,!cursed"},
		setup.AddTo{From: "loot", Target: 7, Count: 2, Mode: setup.ModeFromEnd},
		setup.Distribute{From: "loot", To: "players", Count: 3, Mode: setup.ModeRandom},
		setup.Extract{From: "loot", To: "cursed", Query: "cursed", Limit: 1},
		setup.Move{From: "a", To: "b", Count: 4, Mode: setup.ModeFromStart},
	}
	for _, c := range commands {
		decoded, err := setup.DecodeCommand(setup.EncodeCommand(c))
		require.NoError(t, err)
		assert.Equal(t, c, decoded)
	}

	original := []setup.Setup{{Name: "all", Commands: commands}}
	bz, err := setup.MarshalYAML(original)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "setups.yaml")
	require.NoError(t, os.WriteFile(path, bz, 0o600))
	loaded, err := setup.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)

	fromDocs, err := setup.FromDocs(setup.Docs(original))
	require.NoError(t, err)
	assert.Equal(t, original, fromDocs)
}

func TestDecodeCommandErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  snapshot.CommandDoc
		err  error
	}{
		{name: "unknown type", doc: snapshot.CommandDoc{Type: "burn"}, err: setup.ErrUnknownCommand},
		{name: "missing pool", doc: snapshot.CommandDoc{Type: "create"}, err: setup.ErrInvalidParam},
		{
			name: "missing target",
			doc:  snapshot.CommandDoc{Type: "addTo", Attributes: []snapshot.Param{{Key: "from", Value: "a"}}},
			err:  setup.ErrInvalidParam,
		},
		{
			name: "bad count",
			doc: snapshot.CommandDoc{Type: "move", Attributes: []snapshot.Param{
				{Key: "from", Value: "a"}, {Key: "to", Value: "b"}, {Key: "count", Value: "lots"},
			}},
			err: setup.ErrInvalidParam,
		},
		{
			name: "bad mode",
			doc: snapshot.CommandDoc{Type: "move", Attributes: []snapshot.Param{
				{Key: "from", Value: "a"}, {Key: "to", Value: "b"}, {Key: "mode", Value: "sideways"},
			}},
			err: setup.ErrInvalidParam,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := setup.DecodeCommand(tt.doc)
			require.ErrorIs(t, err, tt.err)
		})
	}

	_, err := setup.FromDoc(snapshot.SetupDoc{Name: "x", Commands: []snapshot.CommandDoc{{Type: "burn"}}})
	require.ErrorIs(t, err, setup.ErrUnknownCommand)
	_, err = setup.Find(nil, "x")
	require.ErrorIs(t, err, setup.ErrSetupNotFound)
}
