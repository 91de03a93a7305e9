package snapshot

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/codec"
	"github.com/argus-labs/tabletop/gamedata"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS tabletop_snapshots (
	world   TEXT NOT NULL,
	slot    TEXT NOT NULL,
	payload BYTEA NOT NULL,
	PRIMARY KEY (world, slot)
)`

// PostgresStorage keeps snapshots in a Postgres table. It shares the slot layout of SQLiteStorage.
type PostgresStorage struct {
	conn    *pgx.Conn
	worldID string
}

var (
	_ Storage        = (*PostgresStorage)(nil)
	_ PendingJournal = (*PostgresStorage)(nil)
)

// NewPostgresStorage connects to dsn and creates the snapshots table when missing.
func NewPostgresStorage(ctx context.Context, dsn, worldID string) (*PostgresStorage, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to postgres")
	}
	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		_ = conn.Close(ctx)
		return nil, eris.Wrap(err, "failed to create snapshots table")
	}
	return &PostgresStorage{conn: conn, worldID: worldID}, nil
}

func (p *PostgresStorage) Close(ctx context.Context) error {
	return eris.Wrap(p.conn.Close(ctx), "failed to close postgres connection")
}

// Store copies the current row to the backup slot and writes the new snapshot in one transaction.
func (p *PostgresStorage) Store(ctx context.Context, snapshot *Snapshot) error {
	bz, err := marshal(snapshot)
	if err != nil {
		return err
	}

	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `INSERT INTO tabletop_snapshots (world, slot, payload)
		SELECT world, $1, payload FROM tabletop_snapshots WHERE world = $2 AND slot = $3
		ON CONFLICT (world, slot) DO UPDATE SET payload = EXCLUDED.payload`,
		slotBackup, p.worldID, slotCurrent); err != nil {
		return eris.Wrap(err, "failed to back up previous snapshot")
	}
	if err := p.put(ctx, tx, slotCurrent, bz); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "failed to commit snapshot")
}

func (p *PostgresStorage) Load(ctx context.Context) (*Snapshot, error) {
	bz, err := p.get(ctx, slotCurrent)
	if err != nil {
		return nil, err
	}
	return unmarshal(bz)
}

func (p *PostgresStorage) StorePending(ctx context.Context, changes []gamedata.Change) error {
	bz, err := codec.Encode(changes)
	if err != nil {
		return eris.Wrap(err, "failed to marshal pending changes")
	}
	return p.put(ctx, p.conn, slotPending, bz)
}

func (p *PostgresStorage) LoadPending(ctx context.Context) ([]gamedata.Change, error) {
	bz, err := p.get(ctx, slotPending)
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

func (p *PostgresStorage) ClearPending(ctx context.Context) error {
	_, err := p.conn.Exec(ctx, `DELETE FROM tabletop_snapshots WHERE world = $1 AND slot = $2`,
		p.worldID, slotPending)
	return eris.Wrap(err, "failed to clear pending changes")
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (p *PostgresStorage) put(ctx context.Context, db pgExecer, slot string, payload []byte) error {
	_, err := db.Exec(ctx, `INSERT INTO tabletop_snapshots (world, slot, payload) VALUES ($1, $2, $3)
		ON CONFLICT (world, slot) DO UPDATE SET payload = EXCLUDED.payload`, p.worldID, slot, payload)
	return eris.Wrapf(err, "failed to write %s slot", slot)
}

func (p *PostgresStorage) get(ctx context.Context, slot string) ([]byte, error) {
	var payload []byte
	err := p.conn.QueryRow(ctx, `SELECT payload FROM tabletop_snapshots WHERE world = $1 AND slot = $2`,
		p.worldID, slot).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s slot", slot)
	}
	return payload, nil
}
