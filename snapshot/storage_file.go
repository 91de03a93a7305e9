package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/codec"
	"github.com/argus-labs/tabletop/gamedata"
)

// FileStorage keeps the latest snapshot as a zstd compressed file. The previous snapshot is kept next to it with
// a .bak suffix, and the pending journal lives in a .pending file.
type FileStorage struct {
	path string
}

var (
	_ Storage        = (*FileStorage)(nil)
	_ PendingJournal = (*FileStorage)(nil)
)

// NewFileStorage returns a storage writing to path. The directory is created when missing.
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		return nil, eris.New("snapshot path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "failed to create snapshot directory")
	}
	return &FileStorage{path: path}, nil
}

// Store moves the current file to the .bak slot before writing the new one.
func (f *FileStorage) Store(_ context.Context, snapshot *Snapshot) error {
	bz, err := marshal(snapshot)
	if err != nil {
		return err
	}
	if err := f.backup(); err != nil {
		return err
	}
	return writeCompressed(f.path, bz)
}

// Load fails with ErrSnapshotNotFound when nothing was stored yet.
func (f *FileStorage) Load(_ context.Context) (*Snapshot, error) {
	bz, err := readCompressed(f.path)
	if err != nil {
		return nil, err
	}
	return unmarshal(bz)
}

// StorePending replaces the journal with changes.
func (f *FileStorage) StorePending(_ context.Context, changes []gamedata.Change) error {
	bz, err := codec.Encode(changes)
	if err != nil {
		return eris.Wrap(err, "failed to marshal pending changes")
	}
	return writeCompressed(f.pendingPath(), bz)
}

func (f *FileStorage) LoadPending(_ context.Context) ([]gamedata.Change, error) {
	bz, err := readCompressed(f.pendingPath())
	if eris.Is(err, ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	changes, err := codec.Decode[[]gamedata.Change](bz)
	if err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal pending changes")
	}
	return changes, nil
}

func (f *FileStorage) ClearPending(_ context.Context) error {
	if err := os.Remove(f.pendingPath()); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "failed to remove pending journal")
	}
	return nil
}

func (f *FileStorage) pendingPath() string {
	return f.path + ".pending"
}

func (f *FileStorage) backup() error {
	err := os.Rename(f.path, f.path+".bak")
	if err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "failed to back up previous snapshot")
	}
	return nil
}

// writeCompressed writes through a temporary file so that a crash never leaves a truncated file at path.
func writeCompressed(path string, bz []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "failed to create temporary file")
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "failed to create zstd writer")
	}
	if _, err := enc.Write(bz); err != nil {
		_ = enc.Close()
		_ = tmp.Close()
		return eris.Wrap(err, "failed to write compressed data")
	}
	if err := enc.Close(); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "failed to flush compressed data")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "failed to close temporary file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "failed to move file into place")
	}
	return nil
}

func readCompressed(path string) ([]byte, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "failed to open file")
	}
	defer func() {
		_ = file.Close()
	}()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create zstd reader")
	}
	defer dec.Close()

	bz, err := io.ReadAll(dec)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decompress file")
	}
	return bz, nil
}
