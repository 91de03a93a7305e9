package types

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/snapshot"
)

// ErrReadOnly is returned by Commit on worlds that only mirror another world.
var ErrReadOnly = eris.New("world is read-only")

// Provider is the running world as seen by the HTTP handlers.
type Provider interface {
	WorldID() string
	Store() *gamedata.Store
	// Commit commits the pending transaction. Sequence is the replication sequence after the commit and stays
	// zero for a world that does not replicate.
	Commit(ctx context.Context) (CommitResult, error)
	Rollback()
	Snapshot() (*snapshot.Snapshot, error)
}

type CommitResult struct {
	Sequence uint64            `json:"sequence"`
	Changes  []gamedata.Change `json:"changes"`
}
