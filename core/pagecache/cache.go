package pagecache

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// request is one unit of work dispatched onto the Cache's home
// goroutine: the Go analogue of "migrate to this execution context, do
// some non-suspending work, migrate back."
type request struct {
	fn   func()
	done chan any // receives the recovered panic value, or nil
}

// Cache wires together the collaborators every Page construction mode
// and every loader needs: a Serializer, an Evicter, a Drainer that
// blocks shutdown until in-flight loads finish, an IOAccount bounding
// concurrent reads, and the logging/tracing/metrics instruments that
// make the cooperative state machine observable. It also owns the one
// goroutine every Page's non-suspending operations run on, which is why
// no Page field needs a mutex.
type Cache struct {
	serializer Serializer
	evicter    Evicter
	drainer    *Drainer
	ioAccount  *IOAccount

	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *Metrics

	reqs chan request
	stop chan struct{}
}

// NewCache starts a Cache's home goroutine and returns it ready for use.
// Close must be called to release it.
func NewCache(serializer Serializer, evicter Evicter, opts ...Option) *Cache {
	c := &Cache{
		serializer: serializer,
		evicter:    evicter,
		drainer:    NewDrainer(),
		logger:     zap.NewNop(),
		tracer:     trace.NewNoopTracerProvider().Tracer("pagecache"),
		reqs:       make(chan request),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ioAccount == nil {
		c.ioAccount = NewIOAccount(defaultIOAccountWeight)
	}
	if c.metrics == nil {
		c.metrics = NewNoopMetrics()
	}
	go c.loop()
	return c
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithTracer attaches an OpenTelemetry tracer for load spans.
func WithTracer(t trace.Tracer) Option { return func(c *Cache) { c.tracer = t } }

// WithMetrics attaches the page-cache instrument set.
func WithMetrics(m *Metrics) Option { return func(c *Cache) { c.metrics = m } }

// WithIOAccount bounds concurrent in-flight BlockReads.
func WithIOAccount(a *IOAccount) Option { return func(c *Cache) { c.ioAccount = a } }

const defaultIOAccountWeight = 32

func (c *Cache) loop() {
	for {
		select {
		case req := <-c.reqs:
			runRequest(req)
		case <-c.stop:
			return
		}
	}
}

// runRequest executes req.fn, recovering any panic so it can be
// re-raised in the calling goroutine instead of crashing the Cache's
// single home goroutine out from under every other pending and future
// request.
func runRequest(req request) {
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		req.fn()
	}()
	req.done <- recovered
}

// run executes fn on the Cache's home goroutine and blocks until it
// returns. fn must not suspend (block on I/O or another run call) —
// every Page mutation in this package satisfies that by construction.
// If fn panics (an InvariantError, by convention — see errors.go), the
// panic is re-raised here, in the caller's own goroutine, rather than
// left to take down the home goroutine silently.
func (c *Cache) run(fn func()) {
	req := request{fn: fn, done: make(chan any, 1)}
	c.reqs <- req
	if r := <-req.done; r != nil {
		panic(r)
	}
}

// Close stops the home goroutine. It does not wait for in-flight loads;
// call Drainer.Wait via Cache.Drainer().Wait for that.
func (c *Cache) Close() {
	close(c.stop)
}

// Drainer returns the shutdown lease tracker in-flight loads register
// with.
func (c *Cache) Drainer() *Drainer { return c.drainer }

// NewPtrFromBlockID constructs a page in the not-yet-loaded category and
// spawns an asynchronous load by block ID (construction mode 1),
// returning a Ptr that pins it immediately.
func (c *Cache) NewPtrFromBlockID(id BlockID) *Ptr {
	ptr := &Ptr{}
	c.run(func() {
		page := newPageFromBlockID(c, id)
		ptr.bindLocked(c, page)
	})
	return ptr
}

// NewPtrFromAllocated constructs a brand-new page with no disk image
// (construction mode 2) from a serializer-allocated buffer.
func (c *Cache) NewPtrFromAllocated(buf []byte) *Ptr {
	ptr := &Ptr{}
	c.run(func() {
		page := newPageFromAllocated(c, buf)
		ptr.bindLocked(c, page)
	})
	return ptr
}

// NewPtrFromBufAndToken constructs a read-ahead page from bytes and a
// token the caller already obtained (construction mode 3).
func (c *Cache) NewPtrFromBufAndToken(buf []byte, tok Token) *Ptr {
	ptr := &Ptr{}
	c.run(func() {
		page := newPageFromBufAndToken(c, buf, tok)
		ptr.bindLocked(c, page)
	})
	return ptr
}

// NewAcq binds a zero-value Acq to the page ptr should be acquired
// against for mode, and returns it. For WriteAccess this means calling
// GetForWrite first, so a shared snapshot forks before the Acq ever
// attaches as a waiter — the fork must happen before attachment, since
// nothing moves a waiter from one page to another afterward.
func (c *Cache) NewAcq(ptr *Ptr, mode AccessMode) *Acq {
	var page *Page
	if mode == WriteAccess {
		page = ptr.GetForWrite()
	} else {
		page = ptr.GetForRead()
	}
	a := &Acq{}
	a.Init(c, page, mode)
	return a
}
