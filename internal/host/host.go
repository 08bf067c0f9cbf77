// Package host runs algo order instances against one exchange connection.
//
// The host owns the instance registry, the generic exec handlers every instance is bound to,
// the routing of exchange events onto instance buses, market data subscription sharing,
// record persistence and the periodic flush of the signal trace.
package host

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/exchange"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/storage"
	"github.com/rxtech-lab/argo-algo/internal/tracer"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Default configuration values.
const (
	DefaultSignalFlushInterval = time.Second
	DefaultTeardownTimeout     = 30 * time.Second
)

// Config tunes the host.
type Config struct {
	// SignalFlushInterval is how often queued signals are written to the signal store.
	SignalFlushInterval time.Duration `yaml:"signal_flush_interval" json:"signalFlushInterval" validate:"gte=0"`
	// TeardownTimeout bounds the teardown of a stopping instance.
	TeardownTimeout time.Duration `yaml:"teardown_timeout" json:"teardownTimeout" validate:"gte=0"`
}

func (c Config) signalFlushInterval() time.Duration {
	if c.SignalFlushInterval > 0 {
		return c.SignalFlushInterval
	}

	return DefaultSignalFlushInterval
}

func (c Config) teardownTimeout() time.Duration {
	if c.TeardownTimeout > 0 {
		return c.TeardownTimeout
	}

	return DefaultTeardownTimeout
}

// Notifier delivers user facing notifications.
type Notifier interface {
	Notify(level algo.NotifyLevel, message string)
}

// Option configures a Host.
type Option func(*Host)

func WithLogger(log *logger.Logger) Option {
	return func(h *Host) {
		h.log = log
	}
}

// WithStateStore persists instance records to store and enables Resume.
func WithStateStore(store storage.StateStore) Option {
	return func(h *Host) {
		h.store = store
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(h *Host) {
		h.notifier = notifier
	}
}

// WithSignalStore flushes the signal trace to store. Without it flushed signals are discarded.
func WithSignalStore(store tracer.Store) Option {
	return func(h *Host) {
		h.signals = store
	}
}

// WithGIDGenerator shares a gid generator between hosts.
func WithGIDGenerator(gids *algo.GIDGenerator) Option {
	return func(h *Host) {
		h.gids = gids
	}
}

// Host owns and schedules algo order instances.
type Host struct {
	config   Config
	conn     exchange.Connectivity
	log      *logger.Logger
	store    storage.StateStore
	notifier Notifier
	signals  tracer.Store
	tracer   *tracer.Tracer
	gids     *algo.GIDGenerator

	defsMu sync.RWMutex
	defs   map[string]*algo.Definition

	mu        sync.RWMutex
	instances map[int64]*entry

	subs *subscriptions
	sink *persister

	ctx     context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// entry is a registered instance together with its event loop.
type entry struct {
	inst *algo.Instance
	bus  *algo.Bus
	done chan struct{}
}

// New creates a host on top of conn. The caller keeps ownership of conn.
func New(config Config, conn exchange.Connectivity, opts ...Option) *Host {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Host{
		config:    config,
		conn:      conn,
		log:       logger.NewNopLogger(),
		store:     nil,
		notifier:  nil,
		signals:   nil,
		tracer:    nil,
		gids:      nil,
		defsMu:    sync.RWMutex{},
		defs:      make(map[string]*algo.Definition),
		mu:        sync.RWMutex{},
		instances: make(map[int64]*entry),
		subs:      nil,
		sink:      nil,
		ctx:       ctx,
		cancel:    cancel,
		wg:        conc.WaitGroup{},
		started:   atomic.Bool{},
		closed:    atomic.Bool{},
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.gids == nil {
		h.gids = algo.NewGIDGenerator()
	}

	if h.notifier == nil {
		h.notifier = NewLogNotifier(h.log)
	}

	h.tracer = tracer.New(h.signals)
	h.subs = newSubscriptions(conn, h.log)
	h.sink = newPersister(h.store, h.log)

	return h
}

// Register adds algo order definitions. Registering an id twice fails.
func (h *Host) Register(defs ...*algo.Definition) error {
	h.defsMu.Lock()
	defer h.defsMu.Unlock()

	for _, def := range defs {
		if def == nil {
			return errors.New(errors.ErrCodeInvalidConfiguration, "nil algo order definition")
		}

		if _, exists := h.defs[def.ID]; exists {
			return errors.Newf(errors.ErrCodeAlgoAlreadyExists, "algo order %s is already registered", def.ID)
		}

		h.defs[def.ID] = def
	}

	return nil
}

// Definition returns the registered definition id.
func (h *Host) Definition(id string) (*algo.Definition, error) {
	h.defsMu.RLock()
	defer h.defsMu.RUnlock()

	def, ok := h.defs[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeAlgoNotFound, "algo order %s is not registered", id)
	}

	return def, nil
}

// Definitions returns the registered definitions sorted by id.
func (h *Host) Definitions() []*algo.Definition {
	h.defsMu.RLock()
	defer h.defsMu.RUnlock()

	defs := make([]*algo.Definition, 0, len(h.defs))
	for _, def := range h.defs {
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

	return defs
}

// Start begins consuming exchange events, persisting records and flushing signals.
func (h *Host) Start(_ context.Context) error {
	if h.closed.Load() {
		return errors.New(errors.ErrCodeHostClosed, "host is closed")
	}

	if !h.started.CompareAndSwap(false, true) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "host already started")
	}

	h.wg.Go(func() { h.pump() })
	h.wg.Go(func() { h.sink.run(h.ctx) })
	h.wg.Go(func() { h.flushSignals() })

	h.log.Info("host started", zap.Int("definitions", len(h.Definitions())))

	return nil
}

// pump routes exchange events until the connection closes or the host shuts down.
func (h *Host) pump() {
	events := h.conn.Events()

	for {
		select {
		case <-h.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				h.log.Warn("exchange event stream closed")

				return
			}

			h.Handle(h.ctx, ev)
		}
	}
}

func (h *Host) flushSignals() {
	ticker := time.NewTicker(h.config.signalFlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.flushTrace(h.ctx)
		}
	}
}

// flushTrace writes queued signals and lets a buffering signal store export them.
func (h *Host) flushTrace(ctx context.Context) {
	if err := h.tracer.Flush(ctx); err != nil {
		h.log.Warn("failed to flush signals", zap.Error(err))

		return
	}

	if f, ok := h.signals.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			h.log.Warn("failed to export signals", zap.Error(err))
		}
	}
}

// StartAO creates an instance of the algo order id with raw parameters and starts it.
// Invalid parameters return ErrCodeInvalidParameter and nothing is started.
func (h *Host) StartAO(ctx context.Context, id string, args any) (int64, error) {
	if h.closed.Load() {
		return 0, errors.New(errors.ErrCodeHostClosed, "host is closed")
	}

	def, err := h.Definition(id)
	if err != nil {
		return 0, err
	}

	inst, err := algo.InitInstance(def, args, h.gids)
	if err != nil {
		return 0, err
	}

	if err := h.launch(ctx, inst, false); err != nil {
		return 0, err
	}

	return inst.GID(), nil
}

// launch binds inst, declares its events and channels and starts its event loop with
// life:start as the first event.
func (h *Host) launch(ctx context.Context, inst *algo.Instance, resumed bool) error {
	bus := algo.NewBus()
	e := &entry{inst: inst, bus: bus, done: make(chan struct{})}

	inst.Bind(algo.Binding{
		Runtime:   h,
		Scheduler: bus,
		Tracer:    h.tracer,
		Logger:    h.log,
	})

	h.mu.Lock()
	h.instances[inst.GID()] = e
	h.mu.Unlock()

	bus.Post(algo.Envelope{Event: algo.LifeStart{Resumed: resumed}, Parent: nil, Timer: 0, Debounce: ""})

	if err := inst.Declare(ctx); err != nil {
		h.deregister(inst.GID(), inst.State.Channels)

		return err
	}

	h.wg.Go(func() {
		defer close(e.done)

		bus.Run(h.ctx, inst)
	})

	h.log.Info("algo order started",
		zap.String("algo", inst.State.ID),
		zap.Int64("gid", inst.GID()),
		zap.String("label", inst.State.Label),
		zap.Bool("resumed", resumed),
	)

	return nil
}

// StopAO stops the instance gid and cancels every order carrying its gid.
func (h *Host) StopAO(_ context.Context, gid int64) error {
	e, ok := h.lookup(gid)
	if !ok {
		return errors.Newf(errors.ErrCodeInstanceNotFound, "algo order %d not found", gid)
	}

	e.bus.Post(algo.Envelope{
		Event: algo.Stop{
			Teardown: func(ctx context.Context, ex algo.Executor) error {
				return ex.CancelOrdersByGID(ctx, gid)
			},
			Opts: algo.StopOptions{Reason: "stopped by user"},
		},
		Parent:   nil,
		Timer:    0,
		Debounce: "",
	})

	return nil
}

// Resume restarts every active record of the state store whose definition is registered.
// It returns the number of instances resumed.
func (h *Host) Resume(ctx context.Context) (int, error) {
	return h.ResumeWithProgress(ctx, nil)
}

// ResumeWithProgress is Resume reporting progress after every record.
func (h *Host) ResumeWithProgress(ctx context.Context, progress func(done, total int)) (int, error) {
	if h.store == nil {
		return 0, nil
	}

	records, err := h.store.ListActive(ctx)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStorageFailed, "failed to list active algo orders", err)
	}

	resumed := 0

	for n, rec := range records {
		if progress != nil {
			progress(n, len(records))
		}

		if _, running := h.lookup(rec.GID); running {
			continue
		}

		def, err := h.Definition(rec.ID)
		if err != nil {
			h.log.Warn("skipping record of unknown algo order", zap.String("algo", rec.ID), zap.Int64("gid", rec.GID))

			continue
		}

		inst, err := algo.Restore(def, rec, h.gids)
		if err != nil {
			h.log.Warn("failed to restore algo order", zap.Int64("gid", rec.GID), zap.Error(err))

			continue
		}

		if err := h.launch(ctx, inst, true); err != nil {
			h.log.Warn("failed to resume algo order", zap.Int64("gid", rec.GID), zap.Error(err))

			continue
		}

		resumed++
	}

	if progress != nil {
		progress(len(records), len(records))
	}

	return resumed, nil
}

// Instances returns a summary of every registered instance, ordered by gid.
func (h *Host) Instances() []algo.Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	summaries := make([]algo.Summary, 0, len(h.instances))
	for _, e := range h.instances {
		summaries = append(summaries, e.inst.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].GID < summaries[j].GID })

	return summaries
}

// Instance returns the summary of gid.
func (h *Host) Instance(gid int64) (algo.Summary, bool) {
	e, ok := h.lookup(gid)
	if !ok {
		return algo.Summary{}, false
	}

	return e.inst.Summary(), true
}

// Done returns a channel closed once the event loop of gid has ended. Unknown gids return a
// closed channel.
func (h *Host) Done(gid int64) <-chan struct{} {
	e, ok := h.lookup(gid)
	if !ok {
		done := make(chan struct{})
		close(done)

		return done
	}

	return e.done
}

// Preview returns the first orders algo order id would submit for args.
func (h *Host) Preview(id string, args any) ([]types.Order, error) {
	def, err := h.Definition(id)
	if err != nil {
		return nil, err
	}

	return def.Preview(args)
}

// Close stops every event loop, then persists pending records and flushes the signal trace.
// Running instances stay active in the state store so they can be resumed.
func (h *Host) Close(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	h.mu.Lock()
	for _, e := range h.instances {
		e.bus.Close()
	}
	h.mu.Unlock()

	h.cancel()

	done := make(chan struct{})

	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.Wrap(errors.ErrCodeHostClosed, "timed out waiting for algo orders to stop", ctx.Err())
	}

	h.sink.drain(ctx)

	if err := h.tracer.Flush(ctx); err != nil {
		return err
	}

	h.log.Info("host closed")

	return nil
}

func (h *Host) lookup(gid int64) (*entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.instances[gid]

	return e, ok
}

// deregister removes gid from the registry, closes its bus and releases its subscriptions.
func (h *Host) deregister(gid int64, channels []types.Channel) {
	h.mu.Lock()
	e, ok := h.instances[gid]
	delete(h.instances, gid)
	h.mu.Unlock()

	if ok {
		e.bus.Close()
	}

	for _, ch := range channels {
		h.subs.release(h.ctx, ch, gid)
	}
}

// Persist implements algo.Runtime.
func (h *Host) Persist(_ context.Context, _ *algo.Instance, rec algo.Record) {
	h.sink.enqueue(rec)
}

// Subscribe implements algo.Runtime.
func (h *Host) Subscribe(ctx context.Context, inst *algo.Instance, ch types.Channel) error {
	snapshot, err := h.subs.acquire(ctx, ch, inst.GID())
	if err != nil {
		return err
	}

	if snapshot != nil {
		e, ok := h.lookup(inst.GID())
		if ok {
			e.bus.Post(algo.Envelope{Event: *snapshot, Parent: nil, Timer: 0, Debounce: ""})
		}
	}

	return nil
}
