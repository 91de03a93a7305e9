package snapshot

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/codec"
	"github.com/argus-labs/tabletop/gamedata"
)

// RedisStorage keeps the latest snapshot, its predecessor and the pending journal under per-world keys.
type RedisStorage struct {
	client  redis.Cmdable
	worldID string
}

var (
	_ Storage        = (*RedisStorage)(nil)
	_ PendingJournal = (*RedisStorage)(nil)
)

// NewRedisStorage returns a storage over client. Keys are namespaced by worldID, so several worlds can share
// one server.
func NewRedisStorage(client redis.Cmdable, worldID string) (*RedisStorage, error) {
	if client == nil {
		return nil, eris.New("redis client cannot be nil")
	}
	if worldID == "" {
		return nil, eris.New("world id cannot be empty")
	}
	return &RedisStorage{client: client, worldID: worldID}, nil
}

func redisSnapshotKey(worldID string) string {
	return fmt.Sprintf("TABLETOP:%s:SNAPSHOT", worldID)
}

func redisBackupKey(worldID string) string {
	return fmt.Sprintf("TABLETOP:%s:SNAPSHOT-BACKUP", worldID)
}

func redisPendingKey(worldID string) string {
	return fmt.Sprintf("TABLETOP:%s:PENDING", worldID)
}

// Store writes the snapshot and moves the previous one to the backup key in one transaction.
func (r *RedisStorage) Store(ctx context.Context, snapshot *Snapshot) error {
	bz, err := marshal(snapshot)
	if err != nil {
		return err
	}

	previous, err := r.client.Get(ctx, redisSnapshotKey(r.worldID)).Bytes()
	if err != nil && !eris.Is(err, redis.Nil) {
		return eris.Wrap(err, "failed to read previous snapshot")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != nil {
			pipe.Set(ctx, redisBackupKey(r.worldID), previous, 0)
		}
		pipe.Set(ctx, redisSnapshotKey(r.worldID), bz, 0)
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "failed to store snapshot")
	}
	return nil
}

// Load fails with ErrSnapshotNotFound when the world has no snapshot key.
func (r *RedisStorage) Load(ctx context.Context) (*Snapshot, error) {
	bz, err := r.client.Get(ctx, redisSnapshotKey(r.worldID)).Bytes()
	if eris.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "failed to load snapshot")
	}
	return unmarshal(bz)
}

// StorePending replaces the journal with changes, one list entry per record.
func (r *RedisStorage) StorePending(ctx context.Context, changes []gamedata.Change) error {
	values := make([]any, 0, len(changes))
	for _, c := range changes {
		bz, err := codec.Encode(c)
		if err != nil {
			return eris.Wrap(err, "failed to marshal pending change")
		}
		values = append(values, bz)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisPendingKey(r.worldID))
		if len(values) > 0 {
			pipe.RPush(ctx, redisPendingKey(r.worldID), values...)
		}
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "failed to store pending changes")
	}
	return nil
}

// LoadPending returns the journal in the order it was stored. An empty journal is not an error.
func (r *RedisStorage) LoadPending(ctx context.Context) ([]gamedata.Change, error) {
	entries, err := r.client.LRange(ctx, redisPendingKey(r.worldID), 0, -1).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to read pending changes")
	}
	changes := make([]gamedata.Change, 0, len(entries))
	for _, entry := range entries {
		c, err := codec.Decode[gamedata.Change]([]byte(entry))
		if err != nil {
			return nil, eris.Wrap(err, "failed to unmarshal pending change")
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (r *RedisStorage) ClearPending(ctx context.Context) error {
	if err := r.client.Del(ctx, redisPendingKey(r.worldID)).Err(); err != nil {
		return eris.Wrap(err, "failed to clear pending changes")
	}
	return nil
}
