package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// SignalWriter stores flushed signals in an in-memory DuckDB table and exports the table to a
// parquet file on Flush and Close.
type SignalWriter struct {
	db         *sql.DB
	sq         squirrel.StatementBuilderType
	outputPath string
	dirty      bool
	mu         sync.Mutex
}

// NewSignalWriter creates a writer exporting to outputPath. Signals already present in an
// existing parquet file are loaded first.
func NewSignalWriter(outputPath string) (*SignalWriter, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to create signal directory", err)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to open duckdb", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id BIGINT PRIMARY KEY,
			name TEXT,
			parent BIGINT,
			gid BIGINT,
			meta TEXT,
			started_at TIMESTAMP,
			ended_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to create signals table", err)
	}

	if _, err := os.Stat(outputPath); err == nil {
		_, err = db.Exec(fmt.Sprintf(`
			INSERT INTO signals
			SELECT * FROM read_parquet('%s')
			ON CONFLICT (id) DO NOTHING
		`, outputPath))
		if err != nil {
			db.Close()

			return nil, errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to load signals from %s", outputPath)
		}
	}

	return &SignalWriter{
		db:         db,
		sq:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		outputPath: outputPath,
		dirty:      false,
		mu:         sync.Mutex{},
	}, nil
}

// Store upserts a signal. A signal stored again replaces its end time.
func (w *SignalWriter) Store(ctx context.Context, signal types.Signal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return errors.New(errors.ErrCodeStorageFailed, "signal writer is closed")
	}

	meta := ""

	if len(signal.Meta) > 0 {
		raw, err := json.Marshal(signal.Meta)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeSerializeFailed, err, "failed to encode meta of signal %d", signal.ID)
		}

		meta = string(raw)
	}

	parent := sql.NullInt64{Int64: 0, Valid: false}
	if signal.Parent != nil {
		parent = sql.NullInt64{Int64: *signal.Parent, Valid: true}
	}

	ended := sql.NullTime{Valid: false}
	if signal.EndedAt != nil {
		ended = sql.NullTime{Time: signal.EndedAt.UTC(), Valid: true}
	}

	_, err := w.sq.
		Insert("signals").
		Columns("id", "name", "parent", "gid", "meta", "started_at", "ended_at").
		Values(signal.ID, signal.Name, parent, signal.GID, meta, signal.StartedAt.UTC(), ended).
		Suffix("ON CONFLICT (id) DO UPDATE SET ended_at = excluded.ended_at").
		RunWith(w.db).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to insert signal %d", signal.ID)
	}

	w.dirty = true

	return nil
}

// Signals returns the stored signals of gid ordered by id. A zero gid returns every signal.
func (w *SignalWriter) Signals(ctx context.Context, gid int64) ([]types.Signal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "signal writer is closed")
	}

	query := w.sq.
		Select("id", "name", "parent", "gid", "meta", "started_at", "ended_at").
		From("signals").
		OrderBy("id ASC")
	if gid != 0 {
		query = query.Where(squirrel.Eq{"gid": gid})
	}

	rows, err := query.RunWith(w.db).QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query signals", err)
	}
	defer rows.Close()

	var signals []types.Signal

	for rows.Next() {
		var (
			signal types.Signal
			parent sql.NullInt64
			meta   sql.NullString
			ended  sql.NullTime
		)

		if err := rows.Scan(&signal.ID, &signal.Name, &parent, &signal.GID, &meta, &signal.StartedAt, &ended); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan signal", err)
		}

		if parent.Valid {
			p := parent.Int64
			signal.Parent = &p
		}

		if ended.Valid {
			t := ended.Time
			signal.EndedAt = &t
		}

		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &signal.Meta); err != nil {
				return nil, errors.Wrapf(errors.ErrCodeSerializeFailed, err, "failed to decode meta of signal %d", signal.ID)
			}
		}

		signals = append(signals, signal)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate signals", err)
	}

	return signals, nil
}

// Flush exports the table to the parquet file if anything was stored since the last export.
func (w *SignalWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return errors.New(errors.ErrCodeStorageFailed, "signal writer is closed")
	}

	return w.exportToParquet()
}

// OutputPath returns the parquet file path.
func (w *SignalWriter) OutputPath() string {
	return w.outputPath
}

// Close exports pending signals and releases the database.
func (w *SignalWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return nil
	}

	exportErr := w.exportToParquet()

	if err := w.db.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to close duckdb", err)
	}

	w.db = nil

	return exportErr
}

func (w *SignalWriter) exportToParquet() error {
	if !w.dirty {
		return nil
	}

	_, err := w.db.Exec(fmt.Sprintf(`
		COPY (SELECT * FROM signals ORDER BY id ASC)
		TO '%s' (FORMAT PARQUET)
	`, w.outputPath))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to export signals to %s", w.outputPath)
	}

	w.dirty = false

	return nil
}
