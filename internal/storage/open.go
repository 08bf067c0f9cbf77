package storage

import "github.com/rxtech-lab/argo-algo/pkg/errors"

// Open opens the state store of backend at path. The "none" backend returns a nil store,
// which disables persistence and resume.
func Open(backend, path string) (StateStore, error) {
	switch backend {
	case "sqlite":
		store, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "pebble":
		store, err := NewPebbleStore(path)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "none", "":
		return nil, nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown storage backend %q", backend)
	}
}
