package peer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/argus-labs/tabletop/assert"
	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/snapshot"
)

// Host owns the authoritative store. Each Commit turns the pending transaction into a batch on the log.
type Host struct {
	mu       sync.Mutex
	store    *gamedata.Store
	log      Log
	logger   zerolog.Logger
	tracer   trace.Tracer
	sequence uint64
	// unpublished holds batches committed locally whose publish failed. They are retried first.
	unpublished []*Batch
}

type HostOption func(*Host)

func WithHostLogger(logger zerolog.Logger) HostOption {
	return func(h *Host) {
		h.logger = logger
	}
}

func WithHostTracer(tracer trace.Tracer) HostOption {
	return func(h *Host) {
		h.tracer = tracer
	}
}

// NewHost continues the log from its last stored batch. The store must already reflect that batch.
func NewHost(ctx context.Context, store *gamedata.Store, log Log, opts ...HostOption) (*Host, error) {
	h := &Host{
		store:  store,
		log:    log,
		logger: zerolog.Nop(),
		tracer: noop.NewTracerProvider().Tracer("peer"),
	}
	for _, opt := range opts {
		opt(h)
	}

	last, err := log.LastSequence(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "failed to read last batch sequence")
	}
	h.sequence = last
	return h, nil
}

// Sequence returns the sequence of the last committed batch.
func (h *Host) Sequence() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sequence
}

// Commit commits the pending transaction of the store and publishes it. An empty transaction publishes nothing
// and returns a nil batch. When publishing fails the store stays committed and the batch is retried by the
// next Commit.
func (h *Host) Commit(ctx context.Context) (*Batch, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, span := h.tracer.Start(ctx, "host.commit")
	defer span.End()

	if err := h.flush(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	changes, err := h.store.PopAndCommit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, eris.Wrap(err, "failed to commit store")
	}
	if len(changes) == 0 {
		span.SetStatus(codes.Ok, "")
		return nil, nil
	}

	hash, err := snapshot.Digest(snapshot.Capture(h.store))
	if err != nil {
		return nil, err
	}
	h.sequence++
	b := &Batch{
		Sequence:  h.sequence,
		ID:        uuid.New(),
		Session:   h.store.Session().ID(),
		Timestamp: time.Now().UTC(),
		Changes:   changes,
		Hash:      hash,
	}
	span.SetAttributes(
		attribute.Int64("batch.sequence", int64(b.Sequence)), //nolint:gosec // sequences stay far below MaxInt64
		attribute.Int("batch.changes", len(changes)),
	)

	assert.That(len(h.unpublished) == 0, "batch %d queued behind %d unpublished batches", b.Sequence, len(h.unpublished))
	h.unpublished = append(h.unpublished, b)
	if err := h.flush(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return b, err
	}

	h.logger.Debug().Uint64("seq", b.Sequence).Int("changes", len(changes)).Msg("committed batch")
	span.SetStatus(codes.Ok, "")
	return b, nil
}

// Rollback discards the pending transaction.
func (h *Host) Rollback() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store.Rollback()
}

// Snapshot captures the committed state together with the sequence it corresponds to.
func (h *Host) Snapshot(setups []snapshot.SetupDoc) (*snapshot.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshot.New(h.store, h.sequence, setups)
}

func (h *Host) flush(ctx context.Context) error {
	for len(h.unpublished) > 0 {
		b := h.unpublished[0]
		if err := h.log.Publish(ctx, b); err != nil {
			h.logger.Error().Err(err).Uint64("seq", b.Sequence).Int("queued", len(h.unpublished)).
				Msg("failed to publish batch")
			return eris.Wrapf(err, "failed to publish batch %d", b.Sequence)
		}
		h.unpublished = h.unpublished[1:]
	}
	return nil
}
