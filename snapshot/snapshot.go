package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/codec"
	"github.com/argus-labs/tabletop/gamedata"
)

// Snapshot is a point-in-time capture of committed store state. Sequence is the replication sequence of the
// last change batch included in it.
type Snapshot struct {
	Sequence  uint64    `json:"sequence"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Document  *Document `json:"document"`
}

// New captures the committed state of s.
func New(s *gamedata.Store, sequence uint64, setups []SetupDoc) (*Snapshot, error) {
	doc := Capture(s)
	doc.Setups = setups
	hash, err := Hash(doc)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Sequence: sequence, Hash: hash, Timestamp: time.Now().UTC(), Document: doc}, nil
}

// Verify recomputes the document hash.
func (s *Snapshot) Verify() error {
	if s.Document == nil {
		return eris.Wrap(ErrInvalidDocument, "snapshot has no document")
	}
	hash, err := Hash(s.Document)
	if err != nil {
		return err
	}
	if hash != s.Hash {
		return eris.Wrapf(ErrHashMismatch, "got %s, want %s", hash, s.Hash)
	}
	return nil
}

func marshal(s *Snapshot) ([]byte, error) {
	bz, err := codec.Encode(s)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal snapshot")
	}
	return bz, nil
}

func unmarshal(bz []byte) (*Snapshot, error) {
	s, err := codec.Decode[Snapshot](bz)
	if err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal snapshot")
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Storage persists the latest snapshot. Store replaces whatever was stored before; Load returns
// ErrSnapshotNotFound when nothing was stored yet.
type Storage interface {
	Store(ctx context.Context, snapshot *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// PendingJournal persists the uncommitted change queue so that a restarted process can rebuild its overlays.
// StorePending replaces the whole journal.
type PendingJournal interface {
	StorePending(ctx context.Context, changes []gamedata.Change) error
	LoadPending(ctx context.Context) ([]gamedata.Change, error)
	ClearPending(ctx context.Context) error
}

// StorageType defines the type of snapshot storage to use.
type StorageType uint8

const (
	StorageTypeUndefined StorageType = iota
	StorageTypeNop
	StorageTypeFile
	StorageTypeRedis
	StorageTypeJetStream
	StorageTypeSQLite
	StorageTypePostgres
)

var storageTypeNames = [...]string{
	StorageTypeUndefined: "UNDEFINED",
	StorageTypeNop:       "NOP",
	StorageTypeFile:      "FILE",
	StorageTypeRedis:     "REDIS",
	StorageTypeJetStream: "JETSTREAM",
	StorageTypeSQLite:    "SQLITE",
	StorageTypePostgres:  "POSTGRES",
}

func (s StorageType) String() string {
	if int(s) < len(storageTypeNames) {
		return storageTypeNames[s]
	}
	return storageTypeNames[StorageTypeUndefined]
}

// IsValid reports whether s names a storage backend.
func (s StorageType) IsValid() bool {
	return s > StorageTypeUndefined && int(s) < len(storageTypeNames)
}

// ParseStorageType parses a backend name as used in configuration.
func ParseStorageType(s string) (StorageType, error) {
	upper := strings.ToUpper(s)
	for i, name := range storageTypeNames {
		if t := StorageType(i); t.IsValid() && name == upper {
			return t, nil
		}
	}
	return StorageTypeUndefined, eris.Errorf("invalid snapshot storage type: %s", s)
}
