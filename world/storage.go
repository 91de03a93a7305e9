package world

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/snapshot"
)

func (w *World) openStorage(ctx context.Context) error {
	opts := w.options
	if opts.Storage != nil {
		w.setStorage(opts.Storage)
		return nil
	}

	switch opts.SnapshotStorageType {
	case snapshot.StorageTypeNop:
		w.setStorage(snapshot.NewNopStorage())

	case snapshot.StorageTypeFile:
		s, err := snapshot.NewFileStorage(opts.SnapshotPath)
		if err != nil {
			return eris.Wrap(err, "failed to create file snapshot storage")
		}
		w.setStorage(s)

	case snapshot.StorageTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddress,
			Password: opts.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return eris.Wrapf(err, "failed to connect to redis at %s", opts.RedisAddress)
		}
		w.closers = append(w.closers, func(context.Context) error { return client.Close() })
		s, err := snapshot.NewRedisStorage(client, opts.WorldID)
		if err != nil {
			return eris.Wrap(err, "failed to create redis snapshot storage")
		}
		w.setStorage(s)

	case snapshot.StorageTypeJetStream:
		s, err := snapshot.NewJetStreamStorage(ctx, snapshot.JetStreamStorageOptions{
			Client:  w.client,
			WorldID: opts.WorldID,
		})
		if err != nil {
			return eris.Wrap(err, "failed to create jetstream snapshot storage")
		}
		w.setStorage(s)

	case snapshot.StorageTypeSQLite:
		s, err := snapshot.NewSQLiteStorage(ctx, opts.SnapshotPath, opts.WorldID)
		if err != nil {
			return eris.Wrap(err, "failed to create sqlite snapshot storage")
		}
		w.closers = append(w.closers, func(context.Context) error { return s.Close() })
		w.setStorage(s)

	case snapshot.StorageTypePostgres:
		s, err := snapshot.NewPostgresStorage(ctx, opts.SnapshotDSN, opts.WorldID)
		if err != nil {
			return eris.Wrap(err, "failed to create postgres snapshot storage")
		}
		w.closers = append(w.closers, s.Close)
		w.setStorage(s)

	case snapshot.StorageTypeUndefined:
		return eris.New("snapshot storage type is undefined")
	}
	return nil
}

func (w *World) setStorage(s snapshot.Storage) {
	w.storage = s
	if j, ok := s.(snapshot.PendingJournal); ok {
		w.journal = j
	}
}
