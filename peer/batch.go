// Package peer replicates committed transactions from one host store to any number of followers over a NATS
// JetStream log.
package peer

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
)

var (
	ErrSequenceMismatch = eris.New("batch sequence does not follow the last applied batch")
	ErrDiverged         = eris.New("state hash differs from the host after applying batch")
)

// Batch is one committed transaction as published by the host. Sequence numbers start at 1 and map one to one
// onto stream sequences. Hash is the snapshot digest of the host's committed state after the batch.
type Batch struct {
	Sequence  uint64            `json:"sequence"`
	ID        uuid.UUID         `json:"id"`
	Session   uuid.UUID         `json:"session"`
	Timestamp time.Time         `json:"timestamp"`
	Changes   []gamedata.Change `json:"changes"`
	Hash      string            `json:"hash"`
}
