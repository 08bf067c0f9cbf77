package algo

import (
	"context"
	"sync"
	"time"
)

// Bus is the event queue of one instance. Posting never blocks; Run drains the queue in FIFO
// order on a single goroutine.
type Bus struct {
	mu     sync.Mutex
	queue  []Envelope
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		mu:     sync.Mutex{},
		queue:  nil,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		closed: false,
	}
}

// Post implements Scheduler. Envelopes posted after Close are dropped.
func (b *Bus) Post(env Envelope) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return
	}

	b.queue = append(b.queue, env)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// After implements Scheduler.
func (b *Bus) After(delay time.Duration, env Envelope) func() bool {
	timer := time.AfterFunc(delay, func() {
		b.Post(env)
	})

	return timer.Stop
}

// Len returns the number of queued envelopes.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queue)
}

// Run delivers queued envelopes to inst until ctx is done or the bus is closed.
func (b *Bus) Run(ctx context.Context, inst *Instance) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-b.wake:
		}

		for {
			env, ok := b.pop()
			if !ok {
				break
			}

			inst.Deliver(ctx, env)

			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (b *Bus) pop() (Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || len(b.queue) == 0 {
		return Envelope{}, false
	}

	env := b.queue[0]
	b.queue[0] = Envelope{}
	b.queue = b.queue[1:]

	return env, true
}

// Close stops Run and drops everything still queued. Closing twice is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.queue = nil
	close(b.done)
}
