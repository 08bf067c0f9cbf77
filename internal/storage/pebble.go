package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// PebbleStore keeps records in a pebble key-value store.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to open pebble store at %s", path)
	}

	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: ao:<20-digit gid>, zero padded so that key order is gid order
var recordPrefix = []byte("ao:")

func recordKey(gid int64) []byte {
	return append(append([]byte{}, recordPrefix...), fmt.Sprintf("%020d", gid)...)
}

// prefixEnd returns the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}

	return nil
}

func (s *PebbleStore) Save(_ context.Context, gid int64, rec algo.Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSerializeFailed, err, "failed to encode record %d", gid)
	}

	if err := s.db.Set(recordKey(gid), val, pebble.Sync); err != nil {
		return errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to save record %d", gid)
	}

	return nil
}

func (s *PebbleStore) Load(_ context.Context, gid int64) (algo.Record, bool, error) {
	val, closer, err := s.db.Get(recordKey(gid))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return algo.Record{}, false, nil
		}

		return algo.Record{}, false, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load record %d", gid)
	}
	defer closer.Close()

	rec, err := decodeRecord(val)
	if err != nil {
		return algo.Record{}, false, err
	}

	return rec, true, nil
}

// ListActive scans the record prefix in key order, which is gid order.
func (s *PebbleStore) ListActive(_ context.Context) ([]algo.Record, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: recordPrefix,
		UpperBound: prefixEnd(recordPrefix),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open record iterator", err)
	}
	defer iter.Close()

	var records []algo.Record

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return nil, err
		}

		if rec.Active {
			records = append(records, rec)
		}
	}

	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan records", err)
	}

	return records, nil
}

var _ StateStore = (*PebbleStore)(nil)
