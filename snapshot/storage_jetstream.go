package snapshot

import (
	"context"
	"fmt"
	"math"

	"github.com/caarlos0/env/v11"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/codec"
	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/micro"
)

const (
	defaultObjectName = "snapshot"
	backupObjectName  = "snapshot.bak"
	pendingObjectName = "pending"
)

// JetStreamStorage implements Storage using a NATS JetStream ObjectStore bucket per world.
type JetStreamStorage struct {
	os jetstream.ObjectStore
}

var (
	_ Storage        = (*JetStreamStorage)(nil)
	_ PendingJournal = (*JetStreamStorage)(nil)
)

// NewJetStreamStorage opens the world's ObjectStore bucket, creating it on first use.
func NewJetStreamStorage(ctx context.Context, opts JetStreamStorageOptions) (*JetStreamStorage, error) {
	if err := opts.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid options passed")
	}
	if opts.MaxBytes == 0 {
		cfg, err := env.ParseAs[jetStreamStorageConfig]()
		if err != nil {
			return nil, eris.Wrap(err, "failed to parse env")
		}
		opts.MaxBytes = cfg.MaxBytes
	}

	js, err := jetstream.New(opts.Client.Conn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create JetStream client")
	}

	// Object store bucket names do not accept dots.
	bucketName := fmt.Sprintf("tabletop_%s_snapshot", opts.WorldID)

	if opts.MaxBytes > math.MaxInt64 {
		return nil, eris.New("snapshot storage max bytes exceeds maximum int64 value")
	}

	osConfig := jetstream.ObjectStoreConfig{
		Bucket:   bucketName,
		MaxBytes: int64(opts.MaxBytes),
	}
	os, err := js.CreateObjectStore(ctx, osConfig)
	if err != nil {
		if !eris.Is(err, jetstream.ErrBucketExists) {
			return nil, eris.Wrapf(err, "failed to create ObjectStore (bucket=%s, maxBytes=%d)",
				osConfig.Bucket, osConfig.MaxBytes)
		}
		os, err = js.ObjectStore(ctx, bucketName)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to get existing ObjectStore (bucket=%s)", bucketName)
		}
	}

	return &JetStreamStorage{os: os}, nil
}

func (j *JetStreamStorage) Store(ctx context.Context, snapshot *Snapshot) error {
	data, err := marshal(snapshot)
	if err != nil {
		return err
	}

	previous, err := j.os.GetBytes(ctx, defaultObjectName)
	switch {
	case err == nil:
		if _, err := j.os.PutBytes(ctx, backupObjectName, previous); err != nil {
			return eris.Wrap(err, "failed to back up previous snapshot")
		}
	case !eris.Is(err, jetstream.ErrObjectNotFound):
		return eris.Wrap(err, "failed to read previous snapshot")
	}

	if _, err = j.os.PutBytes(ctx, defaultObjectName, data); err != nil {
		return eris.Wrap(err, "failed to store snapshot in ObjectStore")
	}
	return nil
}

func (j *JetStreamStorage) Load(ctx context.Context) (*Snapshot, error) {
	data, err := j.os.GetBytes(ctx, defaultObjectName)
	if err != nil {
		if eris.Is(err, jetstream.ErrObjectNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, eris.Wrap(err, "failed to get snapshot from ObjectStore")
	}
	return unmarshal(data)
}

// Exists reports whether the bucket holds a snapshot.
func (j *JetStreamStorage) Exists(ctx context.Context) bool {
	_, err := j.os.GetInfo(ctx, defaultObjectName)
	return err == nil
}

// StorePending replaces the pending object of the bucket with changes.
func (j *JetStreamStorage) StorePending(ctx context.Context, changes []gamedata.Change) error {
	data, err := codec.Encode(changes)
	if err != nil {
		return eris.Wrap(err, "failed to marshal pending changes")
	}
	if _, err := j.os.PutBytes(ctx, pendingObjectName, data); err != nil {
		return eris.Wrap(err, "failed to store pending changes")
	}
	return nil
}

func (j *JetStreamStorage) LoadPending(ctx context.Context) ([]gamedata.Change, error) {
	data, err := j.os.GetBytes(ctx, pendingObjectName)
	if eris.Is(err, jetstream.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "failed to get pending changes")
	}
	changes, err := codec.Decode[[]gamedata.Change](data)
	if err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal pending changes")
	}
	return changes, nil
}

func (j *JetStreamStorage) ClearPending(ctx context.Context) error {
	err := j.os.Delete(ctx, pendingObjectName)
	if err != nil && !eris.Is(err, jetstream.ErrObjectNotFound) {
		return eris.Wrap(err, "failed to clear pending changes")
	}
	return nil
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type JetStreamStorageOptions struct {
	Client  *micro.Client
	WorldID string

	// Maximum bytes for the ObjectStore bucket. Zero falls back to the environment, where zero means unlimited.
	MaxBytes uint64
}

type jetStreamStorageConfig struct {
	MaxBytes uint64 `env:"TABLETOP_SNAPSHOT_STORAGE_MAX_BYTES" envDefault:"0"`
}

func (opt *JetStreamStorageOptions) Validate() error {
	if opt.Client == nil {
		return eris.New("NATS client cannot be nil")
	}
	if opt.WorldID == "" {
		return eris.New("world id cannot be empty")
	}
	return nil
}
