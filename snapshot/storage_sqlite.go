package snapshot

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/argus-labs/tabletop/codec"
	"github.com/argus-labs/tabletop/gamedata"
)

// Rows of the snapshots table are addressed by world and slot.
const (
	slotCurrent = "current"
	slotBackup  = "backup"
	slotPending = "pending"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS snapshots (
	world   TEXT NOT NULL,
	slot    TEXT NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (world, slot)
)`

// SQLiteStorage keeps snapshots in a single SQLite table.
type SQLiteStorage struct {
	db      *sql.DB
	worldID string
}

var (
	_ Storage        = (*SQLiteStorage)(nil)
	_ PendingJournal = (*SQLiteStorage)(nil)
)

// NewSQLiteStorage opens the database at path and creates the snapshots table when missing.
func NewSQLiteStorage(ctx context.Context, path, worldID string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, eris.New("sqlite path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open sqlite")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "failed to create snapshots table")
	}
	return &SQLiteStorage{db: db, worldID: worldID}, nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return eris.Wrap(s.db.Close(), "failed to close sqlite")
}

// Store copies the current row to the backup slot and writes the new snapshot in one transaction.
func (s *SQLiteStorage) Store(ctx context.Context, snapshot *Snapshot) error {
	bz, err := marshal(snapshot)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots (world, slot, payload)
		SELECT world, ?, payload FROM snapshots WHERE world = ? AND slot = ?
		ON CONFLICT (world, slot) DO UPDATE SET payload = excluded.payload`,
		slotBackup, s.worldID, slotCurrent); err != nil {
		return eris.Wrap(err, "failed to back up previous snapshot")
	}
	if err := s.put(ctx, tx, slotCurrent, bz); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "failed to commit snapshot")
}

func (s *SQLiteStorage) Load(ctx context.Context) (*Snapshot, error) {
	bz, err := s.get(ctx, slotCurrent)
	if err != nil {
		return nil, err
	}
	return unmarshal(bz)
}

func (s *SQLiteStorage) StorePending(ctx context.Context, changes []gamedata.Change) error {
	bz, err := codec.Encode(changes)
	if err != nil {
		return eris.Wrap(err, "failed to marshal pending changes")
	}
	return s.put(ctx, s.db, slotPending, bz)
}

func (s *SQLiteStorage) LoadPending(ctx context.Context) ([]gamedata.Change, error) {
	bz, err := s.get(ctx, slotPending)
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

func (s *SQLiteStorage) ClearPending(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE world = ? AND slot = ?`, s.worldID, slotPending)
	return eris.Wrap(err, "failed to clear pending changes")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStorage) put(ctx context.Context, db execer, slot string, payload []byte) error {
	_, err := db.ExecContext(ctx, `INSERT INTO snapshots (world, slot, payload) VALUES (?, ?, ?)
		ON CONFLICT (world, slot) DO UPDATE SET payload = excluded.payload`, s.worldID, slot, payload)
	return eris.Wrapf(err, "failed to write %s slot", slot)
}

func (s *SQLiteStorage) get(ctx context.Context, slot string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE world = ? AND slot = ?`,
		s.worldID, slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s slot", slot)
	}
	return payload, nil
}
