package pagecache

// Page is the in-memory representation of at most one disk block,
// possibly unloaded. Every field below is mutated only from the owning
// Cache's home goroutine (see Cache.run); there is deliberately no mutex
// here — the cooperative, single-owner discipline is what lets
// addSnapshotter/addWaiter/readPtr/writePtr/evictSelf run without ever
// suspending, which the load protocol in load.go depends on.
type Page struct {
	cache *Cache

	bytes []byte
	size  uint32
	token Token

	waitersHead, waitersTail *Acq
	waiterCount              int
	activeWriter             bool

	snapshotRefs int

	loading    bool
	destroyPtr *bool
	loadErr    error

	accessTime uint64
}

// newPageFromBlockID is construction mode 1: allocate in the
// not-yet-loaded category and spawn an asynchronous load by block ID.
func newPageFromBlockID(c *Cache, id BlockID) *Page {
	p := &Page{cache: c, accessTime: c.evicter.NextAccessTime(), loading: true}
	c.evicter.AddNotYetLoaded(p)
	go c.loadByBlockID(p, id)
	return p
}

// newPageFromAllocated is construction mode 2: a brand-new block with no
// disk image yet.
func newPageFromAllocated(c *Cache, buf []byte) *Page {
	p := &Page{
		cache:      c,
		bytes:      buf,
		size:       uint32(len(buf)),
		accessTime: c.evicter.NextAccessTime(),
	}
	c.evicter.AddToEvictableUnbacked(p)
	return p
}

// newPageFromBufAndToken is construction mode 3, the read-ahead path:
// the caller already has bytes and a token in hand.
func newPageFromBufAndToken(c *Cache, buf []byte, tok Token) *Page {
	p := &Page{
		cache:      c,
		bytes:      buf,
		size:       tok.Size(),
		token:      tok,
		accessTime: c.evicter.ReadAheadAccessTime(),
	}
	c.evicter.AddToEvictableDiskBacked(p)
	return p
}

// newPageFromCopyee is construction mode 4: a snapshot fork that will
// memcpy the copyee's bytes once they're resident.
func newPageFromCopyee(c *Cache, copyee *Page) *Page {
	p := &Page{cache: c, accessTime: c.evicter.NextAccessTime(), loading: true}
	c.evicter.AddNotYetLoaded(p)
	go c.loadFromCopyee(p, copyee)
	return p
}

// addSnapshotter increments snapshotRefs. Must not suspend; callable
// from inside a load (load_from_copyee pins its copyee this way).
func (p *Page) addSnapshotter() {
	p.snapshotRefs++
}

// removeSnapshotter decrements snapshotRefs. When it reaches zero the
// page is logically destroyed: waiters must already be empty, any
// in-flight load is told to abandon its work via destroyPtr, and the
// evicter is told to forget the page.
func (p *Page) removeSnapshotter() {
	if p.snapshotRefs <= 0 {
		invariantf("RemoveSnapshotter called with snapshotRefs == %d", p.snapshotRefs)
	}
	p.snapshotRefs--
	if p.snapshotRefs != 0 {
		return
	}
	if p.waiterCount != 0 {
		invariantf("page reached snapshotRefs == 0 with %d waiters still attached", p.waiterCount)
	}
	if p.destroyPtr != nil {
		*p.destroyPtr = true
		p.destroyPtr = nil
	}
	p.cache.evicter.RemovePage(p)
}

// numSnapshotRefs returns the current snapshot reference count, used by
// Ptr.GetForWrite to decide whether a copy-on-write fork is necessary.
func (p *Page) numSnapshotRefs() int {
	return p.snapshotRefs
}

// makeCopy returns a new page constructed via mode 4.
func (p *Page) makeCopy() *Page {
	return newPageFromCopyee(p.cache, p)
}

// addWaiter appends acq to waiters and, depending on the page's current
// state, either pulses it immediately, lets an in-flight load pulse it
// later, spawns a reload from an existing token, or treats the
// combination as unreachable. The eviction category is recomputed and
// committed first, in one atomic (non-suspending) critical section, per
// the two-phase bag update discipline.
func (p *Page) addWaiter(a *Acq) {
	if a.mode == WriteAccess && p.activeWriter {
		invariantf("page already has an active writer")
	}
	old := p.cache.evicter.CorrectEvictionCategory(p)
	p.pushWaiter(a)
	if a.mode == WriteAccess {
		p.activeWriter = true
	}
	p.cache.evicter.ChangeToCorrectEvictionBag(old, p)

	switch {
	case p.bytes != nil:
		a.pulse(nil)
	case p.loading:
		// The in-flight load will pulse every current waiter on commit.
	case p.loadErr != nil:
		// A prior load already failed terminally; this package makes
		// no attempt to retry, so every subsequent waiter just
		// observes the same error immediately.
		a.pulse(p.loadErr)
	case p.token != nil:
		p.loading = true
		go p.cache.loadUsingToken(p)
	default:
		invariantf("unloaded page is not in a loadable state")
	}
}

// removeWaiter detaches acq from waiters and recomputes the eviction
// category; snapshotRefs must still be positive (an Acq's lifetime is
// always dominated by some Ptr on the same page).
func (p *Page) removeWaiter(a *Acq) {
	old := p.cache.evicter.CorrectEvictionCategory(p)
	p.unlinkWaiter(a)
	if a.mode == WriteAccess {
		p.activeWriter = false
	}
	p.cache.evicter.ChangeToCorrectEvictionBag(old, p)

	if p.snapshotRefs <= 0 {
		invariantf("RemoveWaiter called with snapshotRefs == %d", p.snapshotRefs)
	}
}

// bufSize returns the serialized size. Requires bytes resident.
func (p *Page) bufSize() uint32 {
	if p.bytes == nil {
		invariantf("BufSize called while bytes are not resident")
	}
	return p.size
}

// readPtr stamps access_time and returns a read view of bytes.
func (p *Page) readPtr() []byte {
	if p.bytes == nil {
		invariantf("ReadPtr called while bytes are not resident")
	}
	p.accessTime = p.cache.evicter.NextAccessTime()
	return p.bytes
}

// writePtr detaches the disk token (it no longer describes bytes once a
// writer is about to mutate them), stamps access_time, and returns a
// write view of bytes. Requires bytes resident and at least one waiter
// (invariant 5: writes only occur under a live write acquisition).
func (p *Page) writePtr() []byte {
	if p.bytes == nil {
		invariantf("WritePtr called while bytes are not resident")
	}
	if p.waiterCount == 0 {
		invariantf("WritePtr called with no waiters holding the page")
	}
	p.token = nil
	p.accessTime = p.cache.evicter.NextAccessTime()
	return p.bytes
}

// evictSelf drops bytes. Requires bytes resident, a token present (so
// the disk copy can still satisfy a future reload), and no waiters.
func (p *Page) evictSelf() {
	if p.waiterCount != 0 {
		invariantf("EvictSelf called with waiters present")
	}
	if p.token == nil {
		invariantf("EvictSelf called without a disk token")
	}
	if p.bytes == nil {
		invariantf("EvictSelf called while bytes are already absent")
	}
	p.bytes = nil
}

// State is a read-only snapshot of a page's essential fields, exposed so
// an Evicter implementation living outside this package can compute a
// category without this package handing out mutable access to Page
// internals. It must only be requested from the page's home goroutine
// (i.e. from inside a method the Cache dispatched via Cache.run),
// exactly like every other Page operation.
type State struct {
	BytesResident bool
	HasToken      bool
	HasWaiters    bool
	Loading       bool
	Failed        bool
	AccessTime    uint64
	Size          uint32
}

// Snapshot returns the page's current State.
func (p *Page) Snapshot() State {
	return State{
		BytesResident: p.bytes != nil,
		HasToken:      p.token != nil,
		HasWaiters:    p.waiterCount != 0,
		Loading:       p.loading,
		Failed:        p.loadErr != nil,
		AccessTime:    p.accessTime,
		Size:          p.size,
	}
}

func (p *Page) pushWaiter(a *Acq) {
	a.prev = p.waitersTail
	a.next = nil
	if p.waitersTail != nil {
		p.waitersTail.next = a
	} else {
		p.waitersHead = a
	}
	p.waitersTail = a
	p.waiterCount++
}

func (p *Page) unlinkWaiter(a *Acq) {
	if a.prev != nil {
		a.prev.next = a.next
	} else {
		p.waitersHead = a.next
	}
	if a.next != nil {
		a.next.prev = a.prev
	} else {
		p.waitersTail = a.prev
	}
	a.prev, a.next = nil, nil
	p.waiterCount--
}

// pulseWaiters closes every waiter's ready channel, in the single
// commit-phase critical section a completed load runs in. Order of
// observation across waiters is unspecified.
func (p *Page) pulseWaiters(err error) {
	for a := p.waitersHead; a != nil; a = a.next {
		a.pulse(err)
	}
}
