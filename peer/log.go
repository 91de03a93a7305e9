package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/tabletop/codec"
	"github.com/argus-labs/tabletop/micro"
)

// Log is the ordered, durable sequence of batches shared by a host and its followers.
type Log interface {
	// Publish appends b. It fails when b.Sequence does not directly follow the last stored batch.
	Publish(ctx context.Context, b *Batch) error
	// LastSequence returns the sequence of the last stored batch, zero when the log is empty.
	LastSequence(ctx context.Context) (uint64, error)
	// Seek positions the consumer so that the next batch delivered is the one after sequence.
	Seek(ctx context.Context, after uint64) error
	// Pending returns the number of batches not consumed yet.
	Pending(ctx context.Context) (uint64, error)
	// Consume waits a bounded time for the next batch and hands it to fn. The batch is acknowledged once fn
	// succeeds. It returns nil without calling fn when nothing arrived.
	Consume(ctx context.Context, fn func(*Batch) error) error
	// ConsumeBatch hands up to size batches that are already available to fn and returns how many it handled.
	ConsumeBatch(ctx context.Context, size int, fn func(*Batch) error) (int, error)
}

var _ Log = (*JetStreamLog)(nil)

// consumeWait bounds a single Consume call.
const consumeWait = time.Second

type JetStreamLog struct {
	js       jetstream.JetStream
	stream   jetstream.Stream
	consumer jetstream.Consumer
	subject  string
	log      zerolog.Logger
}

func NewJetStreamLog(ctx context.Context, opts JetStreamLogOptions) (*JetStreamLog, error) {
	if err := opts.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid options passed")
	}

	subject := micro.Subject(opts.WorldID, "changes")
	streamName := formatStreamName(opts.WorldID)

	js, err := jetstream.New(opts.Client.Conn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create jetstream client")
	}

	streamConfig := jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	}
	stream, err := js.CreateOrUpdateStream(ctx, streamConfig)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create change stream (name=%s, subjects=%v)",
			streamConfig.Name, streamConfig.Subjects)
	}

	l := &JetStreamLog{js: js, stream: stream, subject: subject, log: opts.Logger}
	if err := l.Seek(ctx, 0); err != nil {
		return nil, err
	}
	return l, nil
}

// Publish appends b to the stream. The stream rejects b unless it directly follows the last stored batch.
func (j *JetStreamLog) Publish(ctx context.Context, b *Batch) error {
	payload, err := codec.Encode(b)
	if err != nil {
		return eris.Wrap(err, "failed to marshal batch")
	}

	ack, err := j.js.Publish(ctx, j.subject, payload, publishOptions(j.subject, b.Sequence)...)
	if err != nil {
		return eris.Wrap(err, "failed to publish batch")
	}
	if ack.Sequence != b.Sequence {
		return eris.Wrapf(ErrSequenceMismatch, "expected stream sequence %d, got %d", b.Sequence, ack.Sequence)
	}

	j.log.Debug().Uint64("seq", b.Sequence).Int("changes", len(b.Changes)).Str("hash", b.Hash).Msg("batch published")
	return nil
}

// LastSequence returns the sequence of the newest stored batch, or 0 for an empty stream.
func (j *JetStreamLog) LastSequence(ctx context.Context) (uint64, error) {
	info, err := j.stream.Info(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "failed to fetch stream info")
	}
	return info.State.LastSeq, nil
}

// Seek replaces the consumer so that delivery starts with the batch after after.
func (j *JetStreamLog) Seek(ctx context.Context, after uint64) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: j.subject,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if after > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = after + 1
	}

	consumer, err := j.stream.CreateConsumer(ctx, cfg)
	if err != nil {
		return eris.Wrap(err, "failed to create stream consumer")
	}
	if j.consumer != nil {
		name := j.consumer.CachedInfo().Name
		if err := j.stream.DeleteConsumer(ctx, name); err != nil {
			j.log.Warn().Err(err).Str("consumer", name).Msg("failed to delete previous consumer")
		}
	}
	j.consumer = consumer
	return nil
}

// Pending returns how many batches the consumer has not delivered yet.
func (j *JetStreamLog) Pending(ctx context.Context) (uint64, error) {
	info, err := j.consumer.Info(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "failed to fetch consumer info")
	}
	return info.NumPending, nil
}

// Consume waits a short while for the next batch and hands it to fn. It returns nil when nothing arrived.
func (j *JetStreamLog) Consume(ctx context.Context, fn func(*Batch) error) error {
	msgs, err := j.consumer.Fetch(1, jetstream.FetchMaxWait(consumeWait))
	if err != nil {
		return eris.Wrap(err, "failed to fetch message")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg, ok := <-msgs.Messages():
		if !ok {
			// A fetch that times out without messages is not an error; the caller polls again.
			if err := msgs.Error(); err != nil && !eris.Is(err, nats.ErrTimeout) {
				return eris.Wrap(err, "error during message fetch")
			}
			return nil
		}
		return handle(msg, fn)
	}
}

// ConsumeBatch hands up to size already stored batches to fn without waiting, and returns how many it processed.
func (j *JetStreamLog) ConsumeBatch(_ context.Context, size int, fn func(*Batch) error) (int, error) {
	batch, err := j.consumer.FetchNoWait(size)
	if err != nil {
		return 0, eris.Wrap(err, "failed to fetch message batch")
	}

	processed := 0
	for msg := range batch.Messages() {
		if err := handle(msg, fn); err != nil {
			return processed, err
		}
		processed++
	}
	if err := batch.Error(); err != nil {
		return processed, eris.Wrap(err, "error occurred during message batch delivery")
	}
	return processed, nil
}

func handle(msg jetstream.Msg, fn func(*Batch) error) error {
	b, err := codec.Decode[Batch](msg.Data())
	if err != nil {
		return eris.Wrap(err, "failed to unmarshal batch")
	}
	if err := fn(&b); err != nil {
		return eris.Wrap(err, "callback failed")
	}
	if err := msg.Ack(); err != nil {
		return eris.Wrap(err, "failed to acknowledge message")
	}
	return nil
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type JetStreamLogOptions struct {
	Client  *micro.Client
	WorldID string
	Logger  zerolog.Logger
}

func (opts JetStreamLogOptions) Validate() error {
	if opts.Client == nil {
		return eris.New("client cannot be nil")
	}
	if opts.WorldID == "" {
		return eris.New("world id cannot be empty")
	}
	return nil
}

// -------------------------------------------------------------------------------------------------
// Utilities
// -------------------------------------------------------------------------------------------------

func formatStreamName(worldID string) string {
	return fmt.Sprintf("tabletop_%s_changes", worldID)
}

// publishOptions orders publishes with ExpectLastSequence, which survives server restarts, and deduplicates
// retries of the same sequence by message id.
func publishOptions(subject string, sequence uint64) []jetstream.PublishOpt {
	return []jetstream.PublishOpt{
		jetstream.WithMsgID(fmt.Sprintf("%s-%d", subject, sequence)),
		jetstream.WithExpectLastSequence(sequence - 1),
	}
}
