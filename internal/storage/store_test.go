package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// StateStoreTestSuite runs the same checks against every StateStore implementation.
type StateStoreTestSuite struct {
	suite.Suite
	open  func(dir string) (StateStore, error)
	store StateStore
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &StateStoreTestSuite{
		open: func(dir string) (StateStore, error) {
			return NewSQLiteStore(filepath.Join(dir, "db", "algo.db"))
		},
	})
}

func TestPebbleStore(t *testing.T) {
	suite.Run(t, &StateStoreTestSuite{
		open: func(dir string) (StateStore, error) {
			return NewPebbleStore(filepath.Join(dir, "pebble"))
		},
	})
}

func (s *StateStoreTestSuite) SetupTest() {
	store, err := s.open(s.T().TempDir())
	s.Require().NoError(err)
	s.store = store
}

func (s *StateStoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func record(gid int64, active bool) algo.Record {
	order := types.NewLimitOrder(gid, "BTCUSDT", 0.1, 30000)

	return algo.Record{
		ID:      "iceberg",
		GID:     gid,
		Name:    "Iceberg",
		Label:   "Iceberg | 1 | 0.1",
		Active:  active,
		Version: "1.2.0",
		Args:    json.RawMessage(`{"symbol":"BTCUSDT","amount":1}`),
		Orders:  map[string]types.Order{order.CID: order},
		State:   json.RawMessage(`{"remainingAmount":0.9}`),
	}
}

func (s *StateStoreTestSuite) TestLoadMissing() {
	_, ok, err := s.store.Load(context.Background(), 42)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StateStoreTestSuite) TestSaveAndLoad() {
	ctx := context.Background()
	rec := record(7, true)

	s.Require().NoError(s.store.Save(ctx, 7, rec))

	got, ok, err := s.store.Load(ctx, 7)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(rec.ID, got.ID)
	s.Equal(rec.Label, got.Label)
	s.True(got.Active)
	s.JSONEq(string(rec.Args), string(got.Args))
	s.JSONEq(string(rec.State), string(got.State))
	s.Len(got.Orders, 1)
}

func (s *StateStoreTestSuite) TestSaveReplaces() {
	ctx := context.Background()

	s.Require().NoError(s.store.Save(ctx, 7, record(7, true)))

	updated := record(7, false)
	updated.State = json.RawMessage(`{"remainingAmount":0}`)
	s.Require().NoError(s.store.Save(ctx, 7, updated))

	got, ok, err := s.store.Load(ctx, 7)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.False(got.Active)
	s.JSONEq(`{"remainingAmount":0}`, string(got.State))
}

func (s *StateStoreTestSuite) TestListActiveOrdersByGID() {
	ctx := context.Background()

	for _, gid := range []int64{12, 3, 100, 5} {
		s.Require().NoError(s.store.Save(ctx, gid, record(gid, gid != 5)))
	}

	records, err := s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal(int64(3), records[0].GID)
	s.Equal(int64(12), records[1].GID)
	s.Equal(int64(100), records[2].GID)
}

func (s *StateStoreTestSuite) TestListActiveEmpty() {
	records, err := s.store.ListActive(context.Background())
	s.Require().NoError(err)
	s.Empty(records)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("ao;"), prefixEnd([]byte("ao:")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff}))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open("sqlite", filepath.Join(dir, "algo.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	store, err = Open("pebble", filepath.Join(dir, "pebble"))
	require.NoError(t, err)
	assert.IsType(t, &PebbleStore{}, store)
	require.NoError(t, store.Close())

	store, err = Open("none", "")
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = Open("redis", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}
