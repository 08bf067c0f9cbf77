package tracer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type memoryStore struct {
	mu      sync.Mutex
	signals []types.Signal
	failOn  int64
}

func (m *memoryStore) Store(_ context.Context, signal types.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failOn != 0 && signal.ID == m.failOn {
		return fmt.Errorf("disk full")
	}

	m.signals = append(m.signals, signal)

	return nil
}

type TracerTestSuite struct {
	suite.Suite
	store  *memoryStore
	tracer *Tracer
}

func TestTracerSuite(t *testing.T) {
	suite.Run(t, new(TracerTestSuite))
}

func (suite *TracerTestSuite) SetupTest() {
	suite.store = &memoryStore{}
	suite.tracer = New(suite.store)
}

func (suite *TracerTestSuite) TestTreeFlushedInCreationOrder() {
	root, err := suite.tracer.Signal("life:start", nil, 1, nil)
	suite.Require().NoError(err)

	child, err := suite.tracer.Signal("self:submit_orders", root, 1, map[string]any{"orders": 2})
	suite.Require().NoError(err)

	grandchild, err := suite.tracer.Signal("exec:order:submit:all", child, 1, nil)
	suite.Require().NoError(err)

	sibling, err := suite.tracer.Signal("orders:order_fill", nil, 1, nil)
	suite.Require().NoError(err)

	suite.Require().NoError(grandchild.End())
	suite.Equal(4, suite.tracer.Pending())

	suite.Require().NoError(suite.tracer.Flush(context.Background()))
	// root, child and sibling are still open
	suite.Equal(3, suite.tracer.Pending())
	suite.Require().Len(suite.store.signals, 4)

	ids := make([]int64, 0, 4)
	seen := map[int64]bool{}

	for _, s := range suite.store.signals {
		ids = append(ids, s.ID)
		if s.Parent != nil {
			// every parent was created, and flushed, before its child
			suite.True(seen[*s.Parent], "parent %d not flushed before %d", *s.Parent, s.ID)
			suite.Less(*s.Parent, s.ID)
		}

		seen[s.ID] = true
	}

	suite.Equal([]int64{root.ID(), child.ID(), grandchild.ID(), sibling.ID()}, ids)
	suite.True(suite.store.signals[0].IsRoot())
	suite.True(suite.store.signals[2].Ended())
	suite.False(suite.store.signals[3].Ended())
}

func (suite *TracerTestSuite) TestEndTwiceFails() {
	s, err := suite.tracer.Signal("life:stop", nil, 1, nil)
	suite.Require().NoError(err)

	suite.NoError(s.End())
	err = s.End()
	suite.True(errors.HasCode(err, errors.ErrCodeSignalAlreadyEnded))
}

func (suite *TracerTestSuite) TestForeignParentRejected() {
	other := New(nil)
	parent, err := other.Signal("life:start", nil, 1, nil)
	suite.Require().NoError(err)

	_, err = suite.tracer.Signal("child", parent, 1, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeSignalForeignParent))
	suite.Equal(0, suite.tracer.Pending())
}

func (suite *TracerTestSuite) TestFlushStopsAtStoreError() {
	for i := 0; i < 3; i++ {
		_, err := suite.tracer.Signal(fmt.Sprintf("s%d", i), nil, 1, nil)
		suite.Require().NoError(err)
	}

	suite.store.failOn = 2
	err := suite.tracer.Flush(context.Background())
	suite.True(errors.HasCode(err, errors.ErrCodeStorageFailed))
	suite.Len(suite.store.signals, 1)
	suite.Equal(3, suite.tracer.Pending())

	suite.store.failOn = 0
	suite.Require().NoError(suite.tracer.Flush(context.Background()))
	suite.Len(suite.store.signals, 3)
	suite.Equal(int64(2), suite.store.signals[1].ID)
}

func (suite *TracerTestSuite) TestSignalFlushedBeforeEndIsStoredAgain() {
	sig, err := suite.tracer.Signal("orders:order_fill", nil, 7, nil)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.tracer.Flush(context.Background()))
	suite.Require().Len(suite.store.signals, 1)
	suite.False(suite.store.signals[0].Ended())
	suite.Equal(1, suite.tracer.Pending())

	// an open signal already stored is not written again
	suite.Require().NoError(suite.tracer.Flush(context.Background()))
	suite.Len(suite.store.signals, 1)

	suite.Require().NoError(sig.End())
	suite.Require().NoError(suite.tracer.Flush(context.Background()))
	suite.Require().Len(suite.store.signals, 2)
	suite.Equal(sig.ID(), suite.store.signals[1].ID)
	suite.True(suite.store.signals[1].Ended())
	suite.Equal(0, suite.tracer.Pending())
}

func (suite *TracerTestSuite) TestNilStoreDiscards() {
	t := New(nil)
	_, err := t.Signal("x", nil, 0, nil)
	suite.Require().NoError(err)
	suite.NoError(t.Flush(context.Background()))
	suite.Equal(0, t.Pending())
}

func (suite *TracerTestSuite) TestConcurrentSignalsHaveUniqueIDs() {
	var wg sync.WaitGroup

	ids := make(chan int64, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			s, err := suite.tracer.Signal("tick", nil, 1, nil)
			if err == nil {
				ids <- s.ID()
			}
		}()
	}

	wg.Wait()
	close(ids)

	unique := map[int64]bool{}
	for id := range ids {
		unique[id] = true
	}

	suite.Len(unique, 100)
}
