// Package world assembles a runnable tabletop world: telemetry, snapshot storage, the store, setups, replication
// and the HTTP API.
package world

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/metrics"
	"github.com/argus-labs/tabletop/micro"
	"github.com/argus-labs/tabletop/peer"
	"github.com/argus-labs/tabletop/server"
	"github.com/argus-labs/tabletop/server/types"
	"github.com/argus-labs/tabletop/setup"
	"github.com/argus-labs/tabletop/snapshot"
	"github.com/argus-labs/tabletop/telemetry"
)

const shutdownTimeout = 10 * time.Second

// World is one tabletop instance.
type World struct {
	options Options
	tel     telemetry.Telemetry

	client     *micro.Client
	ownsClient bool
	storage    snapshot.Storage
	journal    snapshot.PendingJournal
	closers    []func(context.Context) error

	store    *gamedata.Store
	sequence uint64 // sequence of the loaded snapshot, standalone mode
	// fresh is set when no saved state was found.
	fresh        bool
	storedSetups []snapshot.SetupDoc

	mu     sync.RWMutex
	setups []setup.Setup

	changeLog peer.Log
	host      *peer.Host
	follower  *peer.Follower
	snapSub   *nats.Subscription

	server   *server.Server
	registry *prometheus.Registry

	initialized bool
	closed      bool
}

var _ types.Provider = (*World)(nil)

// New loads the environment, merges opts over it and connects the configured storage. Nothing is loaded until
// Init or Run.
func New(opts Options) (*World, error) {
	cfg, err := loadWorldConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load world config")
	}
	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid world options")
	}

	tel, err := telemetry.New(telemetry.Options{ServiceName: "tabletop"})
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize telemetry")
	}

	w := &World{options: options, tel: tel, client: options.Client}
	if w.client == nil && (options.Mode.replicates() || options.SnapshotStorageType == snapshot.StorageTypeJetStream) {
		client, err := micro.NewClient(micro.WithLogger(tel.GetLogger("client")))
		if err != nil {
			return nil, eris.Wrap(err, "failed to initialize NATS client")
		}
		w.client = client
		w.ownsClient = true
	}

	if err := w.openStorage(context.Background()); err != nil {
		w.close()
		return nil, err
	}
	return w, nil
}

// Start runs the world until SIGINT or SIGTERM.
func (w *World) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return w.Run(ctx)
}

// Run initializes the world if needed and serves until ctx is done. The committed state and the pending
// transaction are saved on the way out.
func (w *World) Run(ctx context.Context) error {
	defer w.close()

	if !w.initialized {
		if err := w.Init(ctx); err != nil {
			return err
		}
	}

	logger := w.tel.GetLogger("world")
	logger.Info().Str("world", w.options.WorldID).Str("mode", w.options.Mode.String()).Msg("starting world")

	g, gctx := errgroup.WithContext(ctx)
	if w.server != nil {
		g.Go(func() error { return w.server.Serve(gctx) })
	}
	g.Go(func() error { return w.runRole(gctx) })
	if w.options.SnapshotInterval > 0 {
		g.Go(func() error { return w.runSnapshots(gctx) })
	}
	runErr := g.Wait()
	if eris.Is(runErr, context.Canceled) {
		runErr = nil
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.Save(saveCtx); err != nil {
		logger.Error().Err(err).Msg("failed to save world on shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// Init recovers the saved state, joins replication and runs the initial setup on an empty store.
func (w *World) Init(ctx context.Context) error {
	if w.initialized {
		return eris.New("world is already initialized")
	}

	snap, err := w.recover(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to recover world state")
	}
	if err := w.loadSetups(); err != nil {
		return err
	}
	if err := w.joinReplication(ctx, snap); err != nil {
		return err
	}
	if err := w.runInitialSetup(ctx); err != nil {
		return err
	}

	w.registry, err = metrics.NewRegistry(w.store, w.options.WorldID)
	if err != nil {
		return eris.Wrap(err, "failed to register metrics")
	}
	if !w.options.HTTPDisabled {
		w.server, err = server.New(w,
			server.WithLogger(w.tel.GetLogger("server")),
			server.WithGatherer(w.registry),
			server.WithPort(w.options.HTTPPort),
		)
		if err != nil {
			return eris.Wrap(err, "failed to create HTTP server")
		}
	}

	w.initialized = true
	return nil
}

func (w *World) WorldID() string { return w.options.WorldID }

func (w *World) Mode() Mode { return w.options.Mode }

// Store returns the world's store. It is nil before Init.
func (w *World) Store() *gamedata.Store { return w.store }

// Registry returns the metrics registry. It is nil before Init.
func (w *World) Registry() *prometheus.Registry { return w.registry }

// Commit commits the pending transaction. Hosts also publish it to their followers.
func (w *World) Commit(ctx context.Context) (types.CommitResult, error) {
	switch w.options.Mode {
	case ModeFollower:
		return types.CommitResult{}, eris.Wrap(types.ErrReadOnly, "followers cannot commit")
	case ModeHost:
		b, err := w.host.Commit(ctx)
		if err != nil {
			return types.CommitResult{}, err
		}
		if b == nil {
			return types.CommitResult{Sequence: w.host.Sequence()}, nil
		}
		return types.CommitResult{Sequence: b.Sequence, Changes: b.Changes}, nil
	default:
		changes, err := w.store.PopAndCommit()
		if err != nil {
			return types.CommitResult{}, err
		}
		return types.CommitResult{Sequence: w.sequence, Changes: changes}, nil
	}
}

// Rollback discards the pending transaction.
func (w *World) Rollback() {
	if w.host != nil {
		w.host.Rollback()
		return
	}
	w.store.Rollback()
}

// Snapshot captures the committed state with the known setups attached.
func (w *World) Snapshot() (*snapshot.Snapshot, error) {
	docs := w.setupDocs()
	switch w.options.Mode {
	case ModeHost:
		return w.host.Snapshot(docs)
	case ModeFollower:
		return snapshot.New(w.store, w.follower.Sequence(), docs)
	default:
		return snapshot.New(w.store, w.sequence, docs)
	}
}

// Save stores a snapshot and replaces the saved pending journal with the current pending transaction.
func (w *World) Save(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	snap, err := w.Snapshot()
	if err != nil {
		return err
	}
	if err := w.storage.Store(ctx, snap); err != nil {
		return eris.Wrap(err, "failed to store snapshot")
	}
	if w.journal == nil {
		return nil
	}
	pending := w.store.Pending()
	if len(pending) == 0 {
		return eris.Wrap(w.journal.ClearPending(ctx), "failed to clear pending journal")
	}
	return eris.Wrap(w.journal.StorePending(ctx, pending), "failed to store pending journal")
}

// Setups returns the known setups.
func (w *World) Setups() []setup.Setup {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]setup.Setup(nil), w.setups...)
}

// RunSetup runs the named setup with the configured seed and commits it.
func (w *World) RunSetup(ctx context.Context, name string) (types.CommitResult, error) {
	if w.options.Mode == ModeFollower {
		return types.CommitResult{}, eris.Wrap(types.ErrReadOnly, "followers cannot run setups")
	}
	s, err := setup.Find(w.Setups(), name)
	if err != nil {
		return types.CommitResult{}, err
	}
	runner := setup.NewRunner(w.store, w.options.SetupSeed, setup.WithLogger(w.tel.GetLogger("setup")))
	if err := runner.Run(s); err != nil {
		return types.CommitResult{}, err
	}
	if !w.store.TracksChanges() {
		return types.CommitResult{Sequence: w.sequence}, nil
	}
	return w.Commit(ctx)
}

func (w *World) setupDocs() []snapshot.SetupDoc {
	return setup.Docs(w.Setups())
}

// Close releases storage and connections without saving. Run calls it on the way out.
func (w *World) Close() {
	w.close()
}

func (w *World) close() {
	if w.closed {
		return
	}
	w.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger := w.tel.GetLogger("world")
	if w.snapSub != nil {
		if err := w.snapSub.Unsubscribe(); err != nil {
			logger.Warn().Err(err).Msg("failed to unsubscribe snapshot service")
		}
		w.snapSub = nil
	}
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to close storage")
		}
	}
	w.closers = nil
	if w.ownsClient && w.client != nil {
		w.client.Close()
		w.client = nil
	}
	if err := w.tel.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("telemetry shutdown error")
	}
}
