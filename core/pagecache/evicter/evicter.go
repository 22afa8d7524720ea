// Package evicter provides a reference Evicter implementation for
// pagecache.Cache: a handful of per-category bags, ordered within the
// disk-backed bag by recency so the oldest resident page is always the
// first reclaim candidate. Eviction policy (when to reclaim, how much)
// stays outside this package's job; LRUEvicter only answers "which bag
// does this page belong in" and "what would I reclaim first."
package evicter

import (
	"container/list"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/riverstonedb/pagecache/core/pagecache"
)

type bag int

const (
	bagNotYetLoaded bag = iota
	bagEvictableUnbacked
	bagUnevictable
	bagFailed
	bagEvictableDiskBacked
)

// entry is what LRUEvicter keeps per registered page. Pages in
// bagEvictableDiskBacked live in recent instead of elem; elem is nil for
// those.
type entry struct {
	bag  bag
	elem *list.Element
}

// handle is the BagHandle CorrectEvictionCategory hands back to
// ChangeToCorrectEvictionBag; it is just the bag the page was in before
// whatever mutation triggered the recomputation.
type handle bag

// LRUEvicter is a reference Evicter. Every exported method runs only on
// the owning Cache's home goroutine (the same discipline Page itself
// follows), so none of its state needs a mutex.
type LRUEvicter struct {
	notYetLoaded *list.List
	unbacked     *list.List
	unevictable  *list.List
	failed       *list.List

	// recent holds the disk-backed, currently-evictable pages, using
	// golang-lru's own bookkeeping (Get bumps the key to
	// most-recently-used) rather than container/list. Reclaimable does
	// not rely on this internal order; it re-sorts by AccessTime.
	recent *lru.Cache[*pagecache.Page, struct{}]

	// removing is set while removeFromBag calls recent.Remove, which
	// golang-lru reports through the same callback as a capacity eviction.
	removing bool

	entries map[*pagecache.Page]*entry

	tick          uint64
	residentBytes int64

	logger  *zap.Logger
	metrics *Metrics
}

// New returns an LRUEvicter with all bags empty. maxTracked bounds the
// disk-backed LRU's internal capacity; it is a safety valve, not an
// eviction policy — pages are only actually dropped from it by
// RemovePage, never by the underlying cache reaching capacity (callback
// below panics if that ever happens, since it would mean a page got
// silently forgotten).
func New(maxTracked int, opts ...Option) *LRUEvicter {
	e := &LRUEvicter{
		notYetLoaded: list.New(),
		unbacked:     list.New(),
		unevictable:  list.New(),
		failed:       list.New(),
		entries:      make(map[*pagecache.Page]*entry),
		logger:       zap.NewNop(),
	}
	recent, err := lru.NewWithEvict[*pagecache.Page, struct{}](maxTracked, func(p *pagecache.Page, _ struct{}) {
		if e.removing {
			return // an explicit removeFromBag, not a capacity eviction
		}
		panic("evicter: disk-backed bag overflowed its tracked capacity; RemovePage should have been called first")
	})
	if err != nil {
		panic(err)
	}
	e.recent = recent
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewNoopMetrics()
	}
	return e
}

// Option configures an LRUEvicter at construction time.
type Option func(*LRUEvicter)

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) Option { return func(e *LRUEvicter) { e.logger = l } }

// WithMetrics attaches the evicter's bag-size instrument set.
func WithMetrics(m *Metrics) Option { return func(e *LRUEvicter) { e.metrics = m } }

// NextAccessTime returns a fresh, monotonically increasing tick.
func (e *LRUEvicter) NextAccessTime() uint64 {
	e.tick++
	return e.tick
}

// ReadAheadAccessTime returns the designated cold stamp: a fixed value
// below anything NextAccessTime will ever hand out (ticks start at 1),
// so a read-ahead page looks colder than any page that has actually
// been touched, now or later, until it is itself accessed.
func (e *LRUEvicter) ReadAheadAccessTime() uint64 {
	return 0
}

func (e *LRUEvicter) register(p *pagecache.Page, b bag) {
	if _, ok := e.entries[p]; ok {
		panic("evicter: page registered twice")
	}
	switch b {
	case bagEvictableDiskBacked:
		e.recent.Add(p, struct{}{})
		e.entries[p] = &entry{bag: b}
	default:
		lst := e.listFor(b)
		el := lst.PushBack(p)
		e.entries[p] = &entry{bag: b, elem: el}
	}
	e.metrics.setBagSize(b, e.bagLen(b))
}

func (e *LRUEvicter) listFor(b bag) *list.List {
	switch b {
	case bagNotYetLoaded:
		return e.notYetLoaded
	case bagEvictableUnbacked:
		return e.unbacked
	case bagUnevictable:
		return e.unevictable
	case bagFailed:
		return e.failed
	default:
		panic("evicter: no container/list bag for disk-backed pages")
	}
}

func (e *LRUEvicter) bagLen(b bag) int {
	if b == bagEvictableDiskBacked {
		return e.recent.Len()
	}
	return e.listFor(b).Len()
}

// AddNotYetLoaded registers a page that is currently loading.
func (e *LRUEvicter) AddNotYetLoaded(p *pagecache.Page) {
	e.register(p, bagNotYetLoaded)
}

// AddToEvictableUnbacked registers a freshly allocated page with no
// disk token.
func (e *LRUEvicter) AddToEvictableUnbacked(p *pagecache.Page) {
	e.register(p, bagEvictableUnbacked)
}

// AddToEvictableDiskBacked registers a page that already has bytes and
// a token (the read-ahead construction path).
func (e *LRUEvicter) AddToEvictableDiskBacked(p *pagecache.Page) {
	e.register(p, bagEvictableDiskBacked)
}

// categoryFor computes which bag p belongs in given its current state.
func categoryFor(p *pagecache.Page) bag {
	st := p.Snapshot()
	switch {
	case st.HasWaiters:
		return bagUnevictable
	case st.Loading:
		return bagNotYetLoaded
	case st.Failed:
		return bagFailed
	case st.HasToken:
		return bagEvictableDiskBacked
	case st.BytesResident:
		return bagEvictableUnbacked
	default:
		panic("evicter: page has neither bytes, token, nor a reason to have neither")
	}
}

// CorrectEvictionCategory returns p's current bag without moving it.
func (e *LRUEvicter) CorrectEvictionCategory(p *pagecache.Page) pagecache.BagHandle {
	ent, ok := e.entries[p]
	if !ok {
		panic("evicter: CorrectEvictionCategory on an unregistered page")
	}
	return handle(ent.bag)
}

// ChangeToCorrectEvictionBag removes p from old and reinserts it into
// whatever bag its (now-updated) state says it belongs in.
func (e *LRUEvicter) ChangeToCorrectEvictionBag(old pagecache.BagHandle, p *pagecache.Page) {
	oldBag := old.(handle)
	ent, ok := e.entries[p]
	if !ok {
		panic("evicter: ChangeToCorrectEvictionBag on an unregistered page")
	}
	newBag := categoryFor(p)
	if bag(oldBag) == newBag {
		if newBag == bagEvictableDiskBacked {
			// Touch to refresh recency even when the category didn't
			// change — e.g. Cache.Reclaim's evictSelf leaves a page in
			// this bag (it still has its token).
			e.recent.Get(p)
		}
		return
	}

	e.removeFromBag(bag(oldBag), p, ent)

	if newBag == bagEvictableDiskBacked {
		e.recent.Add(p, struct{}{})
		ent.bag, ent.elem = newBag, nil
	} else {
		el := e.listFor(newBag).PushBack(p)
		ent.bag, ent.elem = newBag, el
	}
	e.metrics.setBagSize(bag(oldBag), e.bagLen(bag(oldBag)))
	e.metrics.setBagSize(newBag, e.bagLen(newBag))
}

func (e *LRUEvicter) removeFromBag(b bag, p *pagecache.Page, ent *entry) {
	if b == bagEvictableDiskBacked {
		e.removing = true
		e.recent.Remove(p)
		e.removing = false
		return
	}
	e.listFor(b).Remove(ent.elem)
}

// AddNowLoadedSize records n more resident bytes.
func (e *LRUEvicter) AddNowLoadedSize(n uint32) {
	e.residentBytes += int64(n)
	e.metrics.setResidentBytes(e.residentBytes)
}

// RemovePage deregisters p entirely.
func (e *LRUEvicter) RemovePage(p *pagecache.Page) {
	ent, ok := e.entries[p]
	if !ok {
		panic("evicter: RemovePage on an unregistered page")
	}
	e.removeFromBag(ent.bag, p, ent)
	delete(e.entries, p)
	e.metrics.setBagSize(ent.bag, e.bagLen(ent.bag))
}

// PageIsInUnevictableBag reports whether p is currently in the
// unevictable bag.
func (e *LRUEvicter) PageIsInUnevictableBag(p *pagecache.Page) bool {
	ent, ok := e.entries[p]
	return ok && ent.bag == bagUnevictable
}

// Reclaimable implements pagecache.Reclaimer: the oldest disk-backed,
// currently-resident pages up to approximately maxBytes, oldest access
// time first. recent.Keys() only tells us bag membership — its order is
// golang-lru's own Get/Add recency, which a page's AccessTime does not
// track (ChangeToCorrectEvictionBag only touches recent when a page
// stays in this bag across a recompute, not on every NextAccessTime
// stamp) — so candidates are always re-sorted by actual AccessTime here.
// This is also why a read-ahead page's designated cold stamp
// (ReadAheadAccessTime) actually makes it the preferred victim: sorted
// by AccessTime, 0 always sorts first.
func (e *LRUEvicter) Reclaimable(maxBytes uint32) []*pagecache.Page {
	keys := e.recent.Keys()
	type candidate struct {
		p  *pagecache.Page
		st pagecache.State
	}
	candidates := make([]candidate, 0, len(keys))
	for _, p := range keys {
		st := p.Snapshot()
		if !st.BytesResident {
			continue
		}
		candidates = append(candidates, candidate{p, st})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].st.AccessTime < candidates[j].st.AccessTime
	})

	var out []*pagecache.Page
	var total uint32
	for _, c := range candidates {
		if total >= maxBytes {
			break
		}
		out = append(out, c.p)
		total += c.st.Size
	}
	return out
}
