package snapshot

import (
	"context"

	"github.com/argus-labs/tabletop/gamedata"
)

// NopStorage keeps nothing. Load always reports ErrSnapshotNotFound.
type NopStorage struct{}

var (
	_ Storage        = NopStorage{}
	_ PendingJournal = NopStorage{}
)

// NewNopStorage returns a storage that keeps nothing.
func NewNopStorage() NopStorage {
	return NopStorage{}
}

func (NopStorage) Store(context.Context, *Snapshot) error {
	return nil
}

func (NopStorage) Load(context.Context) (*Snapshot, error) {
	return nil, ErrSnapshotNotFound
}

func (NopStorage) StorePending(context.Context, []gamedata.Change) error {
	return nil
}

func (NopStorage) LoadPending(context.Context) ([]gamedata.Change, error) {
	return nil, nil
}

func (NopStorage) ClearPending(context.Context) error {
	return nil
}
