package world

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/peer"
	"github.com/argus-labs/tabletop/setup"
	"github.com/argus-labs/tabletop/snapshot"
)

// recover builds the store from the saved snapshot, or from the seed document when nothing was saved yet, and
// replays the saved pending journal on top of it. It returns the loaded snapshot, nil when there was none.
func (w *World) recover(ctx context.Context) (*snapshot.Snapshot, error) {
	logger := w.tel.GetLogger("world")
	session := gamedata.NewSession()
	storeOpts := []gamedata.Option{
		gamedata.WithLogger(w.tel.GetLogger("store")),
		gamedata.WithVersionCheck(w.options.VersionCheck),
	}

	snap, err := w.storage.Load(ctx)
	switch {
	case eris.Is(err, snapshot.ErrSnapshotNotFound):
		w.fresh = true
		snap = nil
		if w.options.SeedFile == "" {
			logger.Info().Msg("no snapshot found, starting with an empty store")
			w.store = gamedata.NewStore(session, storeOpts...)
			break
		}
		seed, err := snapshot.ReadFile(w.options.SeedFile)
		if err != nil {
			return nil, eris.Wrap(err, "failed to read seed document")
		}
		if w.store, err = snapshot.Restore(session, seed, storeOpts...); err != nil {
			return nil, eris.Wrap(err, "failed to restore seed document")
		}
		w.storedSetups = seed.Setups
		logger.Info().Str("file", w.options.SeedFile).Int("entities", w.store.Len()).Msg("loaded seed document")
	case err != nil:
		return nil, eris.Wrap(err, "failed to load snapshot")
	default:
		w.store, err = snapshot.Restore(session, snap.Document, storeOpts...)
		if err != nil {
			return nil, err
		}
		w.sequence = snap.Sequence
		w.storedSetups = snap.Document.Setups
		logger.Info().Uint64("seq", snap.Sequence).Int("entities", w.store.Len()).Msg("restored snapshot")
	}

	w.store.SetTracksChanges(w.options.TrackChanges)
	if w.journal == nil || !w.options.TrackChanges {
		return snap, nil
	}

	pending, err := w.journal.LoadPending(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load pending journal")
	}
	if len(pending) > 0 {
		if err := w.store.RestorePending(pending); err != nil {
			return nil, eris.Wrap(err, "failed to restore pending journal")
		}
		logger.Info().Int("changes", len(pending)).Msg("restored pending transaction")
	}
	return snap, nil
}

// loadSetups merges the setups stored with the loaded document and those of the setup file. The file wins on
// name clashes.
func (w *World) loadSetups() error {
	setups, err := setup.FromDocs(w.storedSetups)
	if err != nil {
		return eris.Wrap(err, "failed to decode stored setups")
	}

	if w.options.SetupFile != "" {
		fromFile, err := setup.LoadFile(w.options.SetupFile)
		if err != nil {
			return eris.Wrapf(err, "failed to load setup file %s", w.options.SetupFile)
		}
		for _, s := range fromFile {
			setups = upsertSetup(setups, s)
		}
	}

	w.mu.Lock()
	w.setups = setups
	w.mu.Unlock()
	return nil
}

func upsertSetup(setups []setup.Setup, s setup.Setup) []setup.Setup {
	for i := range setups {
		if setups[i].Name == s.Name {
			setups[i] = s
			return setups
		}
	}
	return append(setups, s)
}

func (w *World) joinReplication(ctx context.Context, snap *snapshot.Snapshot) error {
	if !w.options.Mode.replicates() {
		return nil
	}

	changeLog, err := peer.NewJetStreamLog(ctx, peer.JetStreamLogOptions{
		Client:  w.client,
		WorldID: w.options.WorldID,
		Logger:  w.tel.GetLogger("log"),
	})
	if err != nil {
		return eris.Wrap(err, "failed to create change log")
	}
	w.changeLog = changeLog

	follower := peer.NewFollower(w.store, changeLog, peer.WithFollowerLogger(w.tel.GetLogger("follower")))
	if w.options.Mode == ModeFollower {
		w.follower = follower
		hostSnap, err := peer.RequestSnapshot(ctx, w.client, w.options.WorldID)
		if err != nil {
			return err
		}
		if err := follower.Bootstrap(ctx, hostSnap); err != nil {
			return eris.Wrap(err, "failed to bootstrap from host snapshot")
		}
		return nil
	}

	// A host restarting from an older snapshot catches up on its own log first.
	if snap == nil {
		snap, err = snapshot.New(w.store, 0, nil)
		if err != nil {
			return err
		}
	}
	if err := follower.Bootstrap(ctx, snap); err != nil {
		return eris.Wrap(err, "failed to position change log")
	}
	if err := follower.Sync(ctx); err != nil {
		return eris.Wrap(err, "failed to catch up on change log")
	}

	w.host, err = peer.NewHost(ctx, w.store, changeLog,
		peer.WithHostLogger(w.tel.GetLogger("host")),
		peer.WithHostTracer(w.tel.Tracer),
	)
	if err != nil {
		return eris.Wrap(err, "failed to create host")
	}
	if seq := w.host.Sequence(); seq != follower.Sequence() {
		return eris.Wrapf(peer.ErrSequenceMismatch, "log ends at %d but state is at %d", seq, follower.Sequence())
	}
	if w.host.Sequence() > 0 {
		// The log already holds the initial setup.
		w.fresh = false
	}

	w.snapSub, err = w.host.ServeSnapshots(w.client, w.options.WorldID, w.setupDocs)
	if err != nil {
		return eris.Wrap(err, "failed to serve snapshots")
	}
	return nil
}

func (w *World) runInitialSetup(ctx context.Context) error {
	name := w.options.InitialSetup
	if name == "" {
		return nil
	}
	if !w.fresh {
		logger := w.tel.GetLogger("world")
		logger.Info().Str("setup", name).Msg("state was recovered, skipping initial setup")
		return nil
	}
	if _, err := w.RunSetup(ctx, name); err != nil {
		return eris.Wrap(err, "failed to run initial setup")
	}
	return nil
}

func (w *World) runRole(ctx context.Context) error {
	if w.options.Mode == ModeFollower {
		err := w.follower.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if w.options.CommitInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	logger := w.tel.GetLogger("world")
	ticker := time.NewTicker(w.options.CommitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if len(w.store.Pending()) == 0 {
				continue
			}
			res, err := w.Commit(ctx)
			if err != nil {
				return eris.Wrap(err, "failed to commit")
			}
			logger.Debug().Uint64("seq", res.Sequence).Int("changes", len(res.Changes)).Msg("committed")
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *World) runSnapshots(ctx context.Context) error {
	logger := w.tel.GetLogger("world")
	ticker := time.NewTicker(w.options.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Save(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to save snapshot")
			}
		case <-ctx.Done():
			return nil
		}
	}
}
