package pagecache

import "context"

// AccessMode distinguishes a read acquisition from a write acquisition.
// This resolves the open question in the design notes: write access is
// made exclusive per page by tagging the acquisition at Init time rather
// than leaving exclusion unenforced.
type AccessMode int

const (
	ReadAccess AccessMode = iota
	WriteAccess
)

// Acq is a short-lived handle awaiting buffer residency and granting
// read/write access once it has it. An Acq pins nothing by ownership —
// its lifetime must be dominated by some Ptr on the same page — it only
// links itself into the page's waiter list for as long as it is open.
type Acq struct {
	cache *Cache
	page  *Page
	mode  AccessMode

	ready chan struct{}
	err   error

	has bool

	// Intrusive waiter-list links, valid only while attached to a page.
	prev, next *Acq
}

// Init binds a zero-value Acq to page and registers it as a waiter. It
// must not be called twice on the same Acq.
func (a *Acq) Init(cache *Cache, page *Page, mode AccessMode) {
	if a.has {
		invariantf("Acq.Init called twice on the same Acq")
	}
	a.cache = cache
	a.page = page
	a.mode = mode
	a.ready = make(chan struct{})
	a.has = true

	cache.run(func() {
		page.addWaiter(a)
	})
}

// pulse is called from the page's home goroutine exactly once, either
// synchronously from addWaiter (bytes already resident) or from a
// loader's commit phase. Closing an already-closed channel would panic,
// so pulse is not idempotent; it runs at most once per Acq by
// construction: every code path that reaches it owns the one-shot
// transition into "resident."
func (a *Acq) pulse(err error) {
	a.err = err
	close(a.ready)
}

// Ready returns the one-shot readiness signal: it is closed once the
// page's bytes are resident (or a load failed — check Err after it
// closes).
func (a *Acq) Ready() <-chan struct{} {
	return a.ready
}

// Await blocks until Ready fires or ctx is done, and surfaces any
// serializer error the load encountered.
func (a *Acq) Await(ctx context.Context) error {
	select {
	case <-a.ready:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error, if any, a completed load finished with. It is
// only meaningful after Ready has fired.
func (a *Acq) Err() error {
	return a.err
}

// BufSize awaits readiness and returns the page's serialized size.
func (a *Acq) BufSize(ctx context.Context) (uint32, error) {
	if err := a.Await(ctx); err != nil {
		return 0, err
	}
	var sz uint32
	a.cache.run(func() { sz = a.page.bufSize() })
	return sz, nil
}

// ReadBuf awaits readiness and returns a read view of the page's bytes.
func (a *Acq) ReadBuf(ctx context.Context) ([]byte, error) {
	if err := a.Await(ctx); err != nil {
		return nil, err
	}
	var buf []byte
	a.cache.run(func() { buf = a.page.readPtr() })
	return buf, nil
}

// WriteBuf awaits readiness, detaches the page's disk token, and
// returns a write view of the page's bytes. Init must have been called
// with WriteAccess.
func (a *Acq) WriteBuf(ctx context.Context) ([]byte, error) {
	if a.mode != WriteAccess {
		invariantf("WriteBuf called on an Acq initialized with ReadAccess")
	}
	if err := a.Await(ctx); err != nil {
		return nil, err
	}
	var buf []byte
	a.cache.run(func() { buf = a.page.writePtr() })
	return buf, nil
}

// Close detaches the Acq from its page's waiter list. Safe to call on an
// Acq that was never Init'd, and safe to call more than once — only the
// first call has an effect.
func (a *Acq) Close() {
	if !a.has {
		return
	}
	a.has = false
	page, cache := a.page, a.cache
	cache.run(func() {
		page.removeWaiter(a)
	})
}
