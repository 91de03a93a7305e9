package peer

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/micro"
	"github.com/argus-labs/tabletop/snapshot"
)

func snapshotSubject(worldID string) string {
	return micro.Subject(worldID, "snapshot")
}

// ServeSnapshots answers snapshot requests for worldID with the host's current committed state. setups is
// called on every request for the setups to include.
func (h *Host) ServeSnapshots(client *micro.Client, worldID string, setups func() []snapshot.SetupDoc) (
	*nats.Subscription, error,
) {
	return client.Handle(snapshotSubject(worldID), func([]byte) (any, error) {
		var docs []snapshot.SetupDoc
		if setups != nil {
			docs = setups()
		}
		return h.Snapshot(docs)
	})
}

// RequestSnapshot asks the host of worldID for its current snapshot.
func RequestSnapshot(ctx context.Context, client *micro.Client, worldID string) (*snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	if err := client.Request(ctx, snapshotSubject(worldID), struct{}{}, &snap); err != nil {
		return nil, eris.Wrap(err, "failed to request snapshot from host")
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return &snap, nil
}
