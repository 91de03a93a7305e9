package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/snapshot"
)

// newCastle builds a small store with scalars, lists, several blocks and nested containment.
func newCastle(t *testing.T) *gamedata.Store {
	t.Helper()

	s := gamedata.NewStore(nil)
	castle := s.CreateEntity()
	require.NoError(t, castle.SetName("Castle"))
	require.NoError(t, castle.SetAttribute("this", "walls", "stone"))
	require.NoError(t, castle.SetAttributeList("this", "tags", []string{"fort", "north", "fort"}))
	require.NoError(t, castle.SetAttribute("dark", "walls", "ruined"))

	knight := s.CreateEntity()
	require.NoError(t, knight.SetName("Knight"))
	require.NoError(t, knight.SetAttribute("this", "strength", "5"))
	require.NoError(t, knight.SetAttributeList("this", "empty", nil))

	sword := s.CreateEntity()
	require.NoError(t, sword.SetName("Sword"))
	require.NoError(t, sword.SetAttribute("this", "weight", "3"))

	require.NoError(t, castle.Add(knight))
	require.NoError(t, knight.Add(sword))
	return s
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	original := newCastle(t)
	doc := snapshot.Capture(original)
	assert.Equal(t, snapshot.CurrentVersion, doc.Version)
	require.Len(t, doc.Objects, 3)

	bz, err := snapshot.Encode(doc)
	require.NoError(t, err)
	decoded, err := snapshot.Decode(bz)
	require.NoError(t, err)

	restored, err := snapshot.Restore(nil, decoded)
	require.NoError(t, err)
	assert.Equal(t, doc, snapshot.Capture(restored))

	castle := restored.FindByName("Castle")[0]
	tags, err := castle.AttributeList("this", "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"fort", "north", "fort"}, tags)

	knight := restored.FindByName("Knight")[0]
	assert.Equal(t, castle, knight.HeldBy())
	require.Len(t, knight.Hold(), 1)
	assert.Equal(t, "Sword", knight.Hold()[0].Name())

	empty, err := knight.AttributeList("this", "empty")
	require.NoError(t, err)
	assert.Empty(t, empty)

	// The restored store hands out ids after the restored ones.
	next := restored.CreateEntity()
	assert.Greater(t, next.ID(), knight.Hold()[0].ID())
}

func TestCaptureIgnoresPending(t *testing.T) {
	t.Parallel()

	s := newCastle(t)
	knight := s.FindByName("Knight")[0]
	version := knight.Version()

	s.SetTracksChanges(true)
	require.NoError(t, knight.SetAttribute("this", "strength", "6"))

	// A second untracked store rebuilt from the committed snapshot still sees the old value.
	committed, err := snapshot.Restore(nil, snapshot.Capture(s))
	require.NoError(t, err)
	other, err := committed.Entity(knight.ID())
	require.NoError(t, err)
	v, err := other.Attribute("this", "strength")
	require.NoError(t, err)
	assert.Equal(t, "5", v)
	assert.False(t, committed.TracksChanges())

	require.NoError(t, s.Commit())
	after, err := snapshot.Restore(nil, snapshot.Capture(s))
	require.NoError(t, err)
	other, err = after.Entity(knight.ID())
	require.NoError(t, err)
	v, err = other.Attribute("this", "strength")
	require.NoError(t, err)
	assert.Equal(t, "6", v)
	assert.Equal(t, version+1, other.Version())
}

func TestRestoreListPositions(t *testing.T) {
	t.Parallel()

	doc := &snapshot.Document{
		Version: snapshot.CurrentVersion,
		Objects: []snapshot.Object{{
			ID: 4, Name: "Deck",
			Blocks: []snapshot.BlockDoc{{Name: "this", Attributes: []snapshot.AttributeDoc{{
				Key:  "Cards",
				List: []snapshot.ListEntry{{N: 2, V: "c"}, {N: 0, V: "a"}, {N: 1, V: "b"}},
			}}}},
		}},
	}

	s, err := snapshot.Restore(nil, doc)
	require.NoError(t, err)
	deck, err := s.Entity(4)
	require.NoError(t, err)
	cards, err := deck.AttributeList("this", "cards")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cards)

	doc.Objects[0].Blocks[0].Attributes[0].List[0].N = 1
	_, err = snapshot.Restore(nil, doc)
	require.ErrorIs(t, err, snapshot.ErrInvalidDocument)
}

func TestRestoreFailures(t *testing.T) {
	t.Parallel()

	t.Run("duplicate id", func(t *testing.T) {
		t.Parallel()
		doc := &snapshot.Document{Version: 1, Objects: []snapshot.Object{{ID: 1}, {ID: 1}}}
		_, err := snapshot.Restore(nil, doc)
		require.ErrorIs(t, err, gamedata.ErrDuplicateID)
	})

	t.Run("future version", func(t *testing.T) {
		t.Parallel()
		doc := &snapshot.Document{Version: snapshot.CurrentVersion + 1}
		_, err := snapshot.Restore(nil, doc)
		require.ErrorIs(t, err, snapshot.ErrUnsupportedVersion)
	})

	t.Run("unresolved containment is skipped", func(t *testing.T) {
		t.Parallel()
		doc := &snapshot.Document{Version: 1, Objects: []snapshot.Object{
			{ID: 1, Name: "Bag", Hold: []int64{2, 9, 1}},
			{ID: 2, Name: "Coin"},
		}}
		s, err := snapshot.Restore(nil, doc)
		require.NoError(t, err)
		bag, err := s.Entity(1)
		require.NoError(t, err)
		assert.Equal(t, []gamedata.ID{2}, bag.HoldIDs())

		// Resolved entities accept mutation.
		require.NoError(t, bag.SetAttribute("this", "open", "yes"))
	})
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		json string
	}{
		{name: "not json", json: `{"version":`},
		{name: "missing objects", json: `{"version":1}`},
		{name: "negative id", json: `{"version":1,"objects":[{"id":-1,"name":"x"}]}`},
		{
			name: "value and list",
			json: `{"version":1,"objects":[{"id":1,"name":"x","blocks":[{"name":"this","attributes":[` +
				`{"key":"a","value":"1","attributeList":[{"n":0,"v":"1"}]}]}]}]}`,
		},
		{name: "setup without name", json: `{"version":1,"objects":[],"setups":[{"commands":[]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := snapshot.Decode([]byte(tt.json))
			require.ErrorIs(t, err, snapshot.ErrInvalidDocument)
		})
	}
}

func TestHashAndCompare(t *testing.T) {
	t.Parallel()

	s := newCastle(t)
	a := snapshot.Capture(s)
	hashA, err := snapshot.Hash(a)
	require.NoError(t, err)
	again, err := snapshot.Hash(snapshot.Capture(s))
	require.NoError(t, err)
	assert.Equal(t, hashA, again)

	sword := s.FindByName("Sword")[0]
	require.NoError(t, sword.SetAttribute("this", "weight", "4"))
	b := snapshot.Capture(s)
	hashB, err := snapshot.Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)

	patch, err := snapshot.Compare(a, b)
	require.NoError(t, err)
	require.NotEmpty(t, patch)
	assert.Contains(t, patch.String(), "/objects/2")

	patch, err = snapshot.Compare(b, b)
	require.NoError(t, err)
	assert.Empty(t, patch)
}

func TestSnapshotVerify(t *testing.T) {
	t.Parallel()

	snap, err := snapshot.New(newCastle(t), 7, []snapshot.SetupDoc{{Name: "start"}})
	require.NoError(t, err)
	require.NoError(t, snap.Verify())
	assert.Equal(t, uint64(7), snap.Sequence)

	snap.Document.Objects[0].Name = "Keep"
	require.ErrorIs(t, snap.Verify(), snapshot.ErrHashMismatch)
}

func TestParseStorageType(t *testing.T) {
	t.Parallel()

	for _, typ := range []snapshot.StorageType{
		snapshot.StorageTypeNop, snapshot.StorageTypeFile, snapshot.StorageTypeRedis,
		snapshot.StorageTypeJetStream, snapshot.StorageTypeSQLite, snapshot.StorageTypePostgres,
	} {
		parsed, err := snapshot.ParseStorageType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
		assert.True(t, parsed.IsValid())
	}

	parsed, err := snapshot.ParseStorageType("jetstream")
	require.NoError(t, err)
	assert.Equal(t, snapshot.StorageTypeJetStream, parsed)

	_, err = snapshot.ParseStorageType("undefined")
	require.Error(t, err)
	assert.False(t, snapshot.StorageTypeUndefined.IsValid())
	assert.Equal(t, "UNDEFINED", snapshot.StorageType(99).String())
}

func TestReadWriteFile(t *testing.T) {
	t.Parallel()

	store := newCastle(t)
	doc := snapshot.Capture(store)
	dir := t.TempDir()

	for _, name := range []string{"castle.json", "castle.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, snapshot.WriteFile(path, doc))
		got, err := snapshot.ReadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, doc, got, name)
	}

	snap, err := snapshot.New(store, 7, nil)
	require.NoError(t, err)
	bz, err := json.Marshal(snap)
	require.NoError(t, err)
	path := filepath.Join(dir, "snap.json")
	require.NoError(t, os.WriteFile(path, bz, 0o600))
	got, err := snapshot.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	snap.Hash = "bogus"
	bz, err = json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, bz, 0o600))
	_, err = snapshot.ReadFile(path)
	require.ErrorIs(t, err, snapshot.ErrHashMismatch)

	_, err = snapshot.ReadFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
