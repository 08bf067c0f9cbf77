package algo

import (
	"sync"
	"time"
)

// GIDGenerator allocates group ids: the millisecond timestamp times 1000 plus a sequence.
// Ids are strictly increasing for the lifetime of the generator, so a retired gid is never
// handed out again, and they stay ahead of ids allocated by earlier processes as long as
// the clock does.
type GIDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewGIDGenerator() *GIDGenerator {
	return &GIDGenerator{
		mu:   sync.Mutex{},
		last: 0,
		now:  time.Now,
	}
}

// Next returns a fresh gid.
func (g *GIDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	gid := g.now().UnixMilli() * 1000
	if gid <= g.last {
		gid = g.last + 1
	}

	g.last = gid

	return gid
}

// Observe makes sure gids restored from storage are never allocated again.
func (g *GIDGenerator) Observe(gid int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if gid > g.last {
		g.last = gid
	}
}
