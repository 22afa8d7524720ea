package pagecache

// Ptr is an owning snapshot handle: it pins exactly one page from the
// moment it is bound until it is reset, keeping that page alive
// (snapshot_refs > 0) regardless of how many Acqs come and go on top of
// it. A Ptr is not copied by value: a second reference to the same page
// comes from Clone, and a private copy of the page is forked only by
// GetForWrite (via makeCopy), the only copy-on-write trigger in this
// package.
type Ptr struct {
	cache *Cache
	page  *Page
}

// bind attaches p to page, incrementing its snapshot_refs. bind is
// unexported: callers get a bound Ptr from Cache's constructors or from
// Clone, never by touching Page directly.
func (p *Ptr) bind(cache *Cache, page *Page) {
	cache.run(func() {
		p.bindLocked(cache, page)
	})
}

// bindLocked is bind's body, for callers that are already executing
// inside a Cache.run closure (Cache's NewPtrFrom* constructors construct
// the page and bind its first Ptr in one dispatch, so there is never a
// window where the page is registered with the evicter but pinned by
// nothing).
func (p *Ptr) bindLocked(cache *Cache, page *Page) {
	if p.page != nil {
		invariantf("Ptr.bind called on an already-bound Ptr")
	}
	p.cache = cache
	p.page = page
	page.addSnapshotter()
}

// Reset releases the pin on the underlying page, if any. It is safe to
// call Reset more than once and safe to call it on a zero-value Ptr.
func (p *Ptr) Reset() {
	if p.page == nil {
		return
	}
	page, cache := p.page, p.cache
	p.page, p.cache = nil, nil
	cache.run(func() {
		page.removeSnapshotter()
	})
}

// Has reports whether this Ptr currently pins a page.
func (p *Ptr) Has() bool {
	return p.page != nil
}

// Clone returns a new Ptr pinning the same page as p, bumping
// snapshot_refs. This is how a second snapshot of a page comes into
// being; GetForWrite on either Ptr after a Clone will fork a private
// copy rather than let the two snapshots observe each other's writes.
func (p *Ptr) Clone() *Ptr {
	if p.page == nil {
		invariantf("Clone called on an unbound Ptr")
	}
	clone := &Ptr{}
	clone.bind(p.cache, p.page)
	return clone
}

// GetForRead returns the underlying page unchanged.
func (p *Ptr) GetForRead() *Page {
	if p.page == nil {
		invariantf("GetForRead called on an unbound Ptr")
	}
	return p.page
}

// GetForWrite returns a page safe to acquire for writing. If other
// snapshots are sharing the current page (numSnapshotRefs() > 1), it
// first forks a private copy via makeCopy and retargets this Ptr at the
// fresh page, leaving the original page's bytes untouched for whichever
// other Ptr still references it. This is the only copy-on-write trigger
// in this package.
func (p *Ptr) GetForWrite() *Page {
	if p.page == nil {
		invariantf("GetForWrite called on an unbound Ptr")
	}
	cache := p.cache
	cache.run(func() {
		if p.page.numSnapshotRefs() <= 1 {
			return
		}
		old := p.page
		fresh := old.makeCopy()
		fresh.addSnapshotter()
		p.page = fresh
		old.removeSnapshotter()
	})
	return p.page
}
