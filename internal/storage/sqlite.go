package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteTable = "algo_orders"

// SQLiteStore keeps one row per algo order in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "sqlite path is empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to create sqlite directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to open sqlite", err)
	}

	db.SetMaxOpenConns(1) // SQLite prefers a single writer.
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := store.migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + sqliteTable + ` (
			gid INTEGER PRIMARY KEY,
			algo TEXT NOT NULL,
			active INTEGER NOT NULL,
			record TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to create algo order table", err)
	}

	return nil
}

// Save upserts the record of gid.
func (s *SQLiteStore) Save(ctx context.Context, gid int64, rec algo.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSerializeFailed, err, "failed to encode record %d", gid)
	}

	_, err = s.sq.
		Insert(sqliteTable).
		Columns("gid", "algo", "active", "record", "updated_at").
		Values(gid, rec.ID, rec.Active, string(raw), time.Now().UTC()).
		Suffix(`ON CONFLICT (gid) DO UPDATE SET
			algo = excluded.algo,
			active = excluded.active,
			record = excluded.record,
			updated_at = excluded.updated_at`).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to save record %d", gid)
	}

	return nil
}

// Load returns the record of gid.
func (s *SQLiteStore) Load(ctx context.Context, gid int64) (algo.Record, bool, error) {
	var raw string

	err := s.sq.
		Select("record").
		From(sqliteTable).
		Where(squirrel.Eq{"gid": gid}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return algo.Record{}, false, nil
	}

	if err != nil {
		return algo.Record{}, false, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load record %d", gid)
	}

	rec, err := decodeRecord([]byte(raw))
	if err != nil {
		return algo.Record{}, false, err
	}

	return rec, true, nil
}

// ListActive returns active records ordered by gid.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]algo.Record, error) {
	rows, err := s.sq.
		Select("record").
		From(sqliteTable).
		Where(squirrel.Eq{"active": true}).
		OrderBy("gid ASC").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list active records", err)
	}
	defer rows.Close()

	var records []algo.Record

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan record", err)
		}

		rec, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate records", err)
	}

	return records, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func decodeRecord(raw []byte) (algo.Record, error) {
	var rec algo.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return algo.Record{}, errors.Wrap(errors.ErrCodeSerializeFailed, "failed to decode record", err)
	}

	return rec, nil
}

var _ StateStore = (*SQLiteStore)(nil)
