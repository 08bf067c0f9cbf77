package host

import (
	"context"
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/storage"
	"go.uber.org/zap"
)

// persister saves records off the instance event loops. Only the latest record of a gid
// is kept while a save is pending.
type persister struct {
	store storage.StateStore
	log   *logger.Logger

	mu      sync.Mutex
	pending map[int64]algo.Record
	wake    chan struct{}
}

func newPersister(store storage.StateStore, log *logger.Logger) *persister {
	return &persister{
		store:   store,
		log:     log,
		mu:      sync.Mutex{},
		pending: make(map[int64]algo.Record),
		wake:    make(chan struct{}, 1),
	}
}

func (p *persister) enqueue(rec algo.Record) {
	if p.store == nil {
		return
	}

	p.mu.Lock()
	p.pending[rec.GID] = rec
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.drain(ctx)
		}
	}
}

// drain saves every pending record, oldest gid first.
func (p *persister) drain(ctx context.Context) {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[int64]algo.Record)
	p.mu.Unlock()

	gids := make([]int64, 0, len(batch))
	for gid := range batch {
		gids = append(gids, gid)
	}

	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })

	for _, gid := range gids {
		// a cancelled host context must not lose the final records
		if err := p.store.Save(context.WithoutCancel(ctx), gid, batch[gid]); err != nil {
			p.log.Warn("failed to persist algo order", zap.Int64("gid", gid), zap.Error(err))
		}
	}
}
