// Package storage persists algo order records and the signal trace.
package storage

import (
	"context"

	"github.com/rxtech-lab/argo-algo/internal/algo"
)

// StateStore persists the latest record of every algo order instance.
type StateStore interface {
	// Save replaces the record stored for gid.
	Save(ctx context.Context, gid int64, rec algo.Record) error
	// Load returns the record of gid. The bool is false if nothing is stored.
	Load(ctx context.Context, gid int64) (algo.Record, bool, error)
	// ListActive returns the records still marked active, oldest gid first.
	ListActive(ctx context.Context) ([]algo.Record, error)
	Close() error
}
