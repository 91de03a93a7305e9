package peer

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/snapshot"
)

const syncBatchSize = 256

// Follower replays the host's batches into a local store. Local pending changes survive each replay.
type Follower struct {
	mu       sync.Mutex
	store    *gamedata.Store
	log      Log
	logger   zerolog.Logger
	sequence uint64
	verify   bool
}

type FollowerOption func(*Follower)

func WithFollowerLogger(logger zerolog.Logger) FollowerOption {
	return func(f *Follower) {
		f.logger = logger
	}
}

// WithHashCheck makes the follower compare its committed state with the host after every batch.
func WithHashCheck(verify bool) FollowerOption {
	return func(f *Follower) {
		f.verify = verify
	}
}

// NewFollower returns a follower at sequence 0 with the hash check enabled.
func NewFollower(store *gamedata.Store, log Log, opts ...FollowerOption) *Follower {
	f := &Follower{store: store, log: log, logger: zerolog.Nop(), verify: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Sequence returns the sequence of the last applied batch.
func (f *Follower) Sequence() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sequence
}

// Bootstrap brings the store to the state of snap through reconciliation and continues the log after it.
func (f *Follower) Bootstrap(ctx context.Context, snap *snapshot.Snapshot) error {
	if err := snap.Verify(); err != nil {
		return err
	}
	remote, err := snapshot.Restore(f.store.Session(), snap.Document)
	if err != nil {
		return eris.Wrap(err, "failed to restore host snapshot")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	changes, err := Reconcile(f.store, remote)
	if err != nil {
		return err
	}
	if err := f.log.Seek(ctx, snap.Sequence); err != nil {
		return err
	}
	f.sequence = snap.Sequence
	f.logger.Info().Uint64("seq", snap.Sequence).Int("changes", len(changes)).Msg("bootstrapped from snapshot")
	return nil
}

// Sync applies every batch that is already in the log.
func (f *Follower) Sync(ctx context.Context) error {
	pending, err := f.log.Pending(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to get number of batches to sync")
	}
	f.logger.Info().Uint64("from_seq", f.Sequence()).Uint64("pending", pending).Msg("starting sync")

	for pending > 0 {
		processed, err := f.log.ConsumeBatch(ctx, syncBatchSize, f.Apply)
		if err != nil {
			return eris.Wrap(err, "failed to replay batch")
		}
		if processed == 0 {
			break
		}
		pending -= min(pending, uint64(processed))
	}
	return nil
}

// Run syncs and then applies batches as they arrive until ctx is done.
func (f *Follower) Run(ctx context.Context) error {
	if err := f.Sync(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.log.Consume(ctx, f.Apply); err != nil {
			return err
		}
	}
}

// Apply replays one batch. Batches at or below the current sequence were already applied and are skipped. Records
// that fail to apply are logged and do not hold the sequence back.
func (f *Follower) Apply(b *Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if b.Sequence <= f.sequence {
		return nil
	}
	if b.Sequence != f.sequence+1 {
		return eris.Wrapf(ErrSequenceMismatch, "expected %d, got %d", f.sequence+1, b.Sequence)
	}

	// The records that did apply cannot be taken back, so the batch counts as consumed either way. A real
	// divergence shows up in the hash check.
	if err := f.store.ApplyRemote(b.Changes); err != nil {
		f.logger.Warn().Err(err).Uint64("seq", b.Sequence).Msg("batch applied with anomalies")
	}
	f.sequence = b.Sequence

	if f.verify {
		hash, err := snapshot.Digest(snapshot.Capture(f.store))
		if err != nil {
			return err
		}
		if hash != b.Hash {
			return eris.Wrapf(ErrDiverged, "batch %d: got %s, want %s", b.Sequence, hash, b.Hash)
		}
	}
	f.logger.Debug().Uint64("seq", b.Sequence).Int("changes", len(b.Changes)).Msg("applied batch")
	return nil
}
