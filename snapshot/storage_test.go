package snapshot_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/micro/testutils"
	"github.com/argus-labs/tabletop/snapshot"
)

type journalStorage interface {
	snapshot.Storage
	snapshot.PendingJournal
}

func newStorages(t *testing.T) map[string]journalStorage {
	t.Helper()
	ctx := t.Context()

	file, err := snapshot.NewFileStorage(filepath.Join(t.TempDir(), "world", "snapshot.zst"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rs, err := snapshot.NewRedisStorage(client, "w1")
	require.NoError(t, err)

	sqlite, err := snapshot.NewSQLiteStorage(ctx, filepath.Join(t.TempDir(), "snapshots.db"), "w1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	nats := testutils.NewNATS(t)
	js, err := snapshot.NewJetStreamStorage(ctx, snapshot.JetStreamStorageOptions{
		Client:  nats.NewClient(t),
		WorldID: "w1",
	})
	require.NoError(t, err)

	return map[string]journalStorage{
		"file":      file,
		"redis":     rs,
		"sqlite":    sqlite,
		"jetstream": js,
	}
}

func TestStorage(t *testing.T) {
	t.Parallel()

	for name, storage := range newStorages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := storage.Load(ctx)
			require.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)

			s := newCastle(t)
			first, err := snapshot.New(s, 1, nil)
			require.NoError(t, err)
			require.NoError(t, storage.Store(ctx, first))

			loaded, err := storage.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, first.Hash, loaded.Hash)
			assert.Equal(t, first.Document, loaded.Document)
			assert.Equal(t, uint64(1), loaded.Sequence)
			assert.True(t, first.Timestamp.Equal(loaded.Timestamp))

			require.NoError(t, s.FindByName("Knight")[0].SetName("Squire"))
			second, err := snapshot.New(s, 2, nil)
			require.NoError(t, err)
			require.NoError(t, storage.Store(ctx, second))

			loaded, err = storage.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, second.Hash, loaded.Hash)
			assert.Equal(t, uint64(2), loaded.Sequence)

			restored, err := snapshot.Restore(nil, loaded.Document)
			require.NoError(t, err)
			assert.Len(t, restored.FindByName("Squire"), 1)
		})
	}
}

func TestPendingJournal(t *testing.T) {
	t.Parallel()

	changes := []gamedata.Change{
		{Seq: 1, Kind: gamedata.ChangeSetAttribute, ID: 0, Block: "this", Key: "a", Value: "1"},
		{Seq: 2, Kind: gamedata.ChangeSetList, ID: 0, Block: "this", Key: "l", Clear: true, Items: []string{"x", "y"}},
		{Seq: 3, Kind: gamedata.ChangeHoldAdd, ID: 0, Version: 2, Child: 1},
	}

	for name, storage := range newStorages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			loaded, err := storage.LoadPending(ctx)
			require.NoError(t, err)
			assert.Empty(t, loaded)

			require.NoError(t, storage.StorePending(ctx, changes))
			loaded, err = storage.LoadPending(ctx)
			require.NoError(t, err)
			assert.Equal(t, changes, loaded)

			// Storing again replaces the journal.
			require.NoError(t, storage.StorePending(ctx, changes[:1]))
			loaded, err = storage.LoadPending(ctx)
			require.NoError(t, err)
			assert.Equal(t, changes[:1], loaded)

			require.NoError(t, storage.ClearPending(ctx))
			loaded, err = storage.LoadPending(ctx)
			require.NoError(t, err)
			assert.Empty(t, loaded)
			require.NoError(t, storage.ClearPending(ctx))
		})
	}
}

func TestNopStorage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := snapshot.NewNopStorage()
	snap, err := snapshot.New(gamedata.NewStore(nil), 0, nil)
	require.NoError(t, err)
	require.NoError(t, storage.Store(ctx, snap))
	_, err = storage.Load(ctx)
	require.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
}
