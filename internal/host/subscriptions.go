package host

import (
	"context"
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/exchange"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"go.uber.org/zap"
)

// subscriptions shares one exchange subscription between every instance declaring the same
// channel. Candle channels keep the latest snapshot so late subscribers can be seeded.
type subscriptions struct {
	conn exchange.Connectivity
	log  *logger.Logger

	mu    sync.RWMutex
	byKey map[string]*subscription
}

type subscription struct {
	channel types.Channel
	members map[int64]struct{}
	candles []types.Candle
	seeded  bool
	// ready is closed once the exchange subscription settled; err is its failure
	ready chan struct{}
	err   error
}

func newSubscriptions(conn exchange.Connectivity, log *logger.Logger) *subscriptions {
	return &subscriptions{
		conn:  conn,
		log:   log,
		mu:    sync.RWMutex{},
		byKey: make(map[string]*subscription),
	}
}

// acquire adds gid to the subscribers of ch, subscribing on the exchange for the first one.
// Later subscribers wait until that subscription settled and share its outcome. For a candle
// channel that is already seeded the cached snapshot is returned.
func (s *subscriptions) acquire(ctx context.Context, ch types.Channel, gid int64) (*algo.CandlesUpdate, error) {
	key := ch.Key()

	s.mu.Lock()

	sub, exists := s.byKey[key]
	if exists {
		sub.members[gid] = struct{}{}
		s.mu.Unlock()

		return s.join(ctx, sub, gid)
	}

	// registered before subscribing so events sent during Subscribe are routed
	sub = &subscription{
		channel: ch,
		members: map[int64]struct{}{gid: {}},
		candles: nil,
		seeded:  false,
		ready:   make(chan struct{}),
		err:     nil,
	}
	s.byKey[key] = sub
	s.mu.Unlock()

	if err := s.conn.Subscribe(ctx, ch); err != nil {
		s.mu.Lock()
		if s.byKey[key] == sub {
			delete(s.byKey, key)
		}

		sub.err = errors.Wrapf(errors.ErrCodeSubscribeFailed, err, "failed to subscribe to %s", key)
		close(sub.ready)
		s.mu.Unlock()

		return nil, sub.err
	}

	close(sub.ready)
	s.log.Debug("subscribed", zap.String("channel", key))

	return nil, nil
}

func (s *subscriptions) join(ctx context.Context, sub *subscription, gid int64) (*algo.CandlesUpdate, error) {
	select {
	case <-sub.ready:
	case <-ctx.Done():
		s.release(context.WithoutCancel(ctx), sub.channel, gid)

		return nil, errors.Wrapf(errors.ErrCodeSubscribeFailed, ctx.Err(), "gave up waiting for %s", sub.channel.Key())
	}

	if sub.err != nil {
		return nil, sub.err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !sub.seeded || len(sub.candles) == 0 {
		return nil, nil
	}

	candles := make([]types.Candle, len(sub.candles))
	copy(candles, sub.candles)

	return &algo.CandlesUpdate{Symbol: sub.channel.Symbol, Timeframe: sub.channel.Timeframe, Candles: candles, Snapshot: true}, nil
}

// release removes gid from the subscribers of ch and unsubscribes once nobody is left.
func (s *subscriptions) release(ctx context.Context, ch types.Channel, gid int64) {
	key := ch.Key()

	s.mu.Lock()

	sub, exists := s.byKey[key]
	if !exists {
		s.mu.Unlock()

		return
	}

	delete(sub.members, gid)

	if len(sub.members) > 0 {
		s.mu.Unlock()

		return
	}

	delete(s.byKey, key)
	s.mu.Unlock()

	if err := s.conn.Unsubscribe(ctx, ch); err != nil {
		s.log.Warn("failed to unsubscribe", zap.String("channel", key), zap.Error(err))
	}

	s.log.Debug("unsubscribed", zap.String("channel", key))
}

// members returns the gids subscribed to key, sorted.
func (s *subscriptions) members(key string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.byKey[key]
	if !exists {
		return nil
	}

	gids := make([]int64, 0, len(sub.members))
	for gid := range sub.members {
		gids = append(gids, gid)
	}

	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })

	return gids
}

// observeCandles keeps the cached candle history of a channel current.
func (s *subscriptions) observeCandles(ev types.CandlesEvent) {
	key := types.CandlesChannel(ev.Symbol, ev.Timeframe).Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.byKey[key]
	if !exists {
		return
	}

	if ev.Snapshot {
		sub.candles = append([]types.Candle(nil), ev.Candles...)
		sub.seeded = true

		return
	}

	limit := len(sub.candles)

	for _, c := range ev.Candles {
		n := len(sub.candles)
		if n > 0 && sub.candles[n-1].Time.Equal(c.Time) {
			sub.candles[n-1] = c

			continue
		}

		sub.candles = append(sub.candles, c)
	}

	if limit > 0 && len(sub.candles) > limit {
		sub.candles = sub.candles[len(sub.candles)-limit:]
	}
}
