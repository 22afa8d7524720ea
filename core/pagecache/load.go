package pagecache

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// The three loaders below all follow the same shared protocol: take a
// drainer lease so shutdown waits for us, publish a destroy sentinel
// before any suspension, suspend to do the real I/O,
// then — in one non-suspending commit phase — check the sentinel and
// either discard our work (the page was abandoned while we were
// suspended) or commit bytes/size/token, move the page to its correct
// eviction bag, and pulse every waiter.
//
// "Suspend" here means anything that isn't dispatched through
// Cache.run: calls into the Serializer, and the IOAccount semaphore
// acquire that bounds them. Everything that touches Page fields goes
// through Cache.run, which runs on the Cache's single home goroutine —
// that's what makes the commit phase atomic with respect to every other
// Page operation without a single mutex.

// loadByBlockID is construction mode 1's loader: resolve the block id
// to a token and read its bytes.
func (c *Cache) loadByBlockID(p *Page, id BlockID) {
	lease := c.drainer.Lease("load_by_block_id")
	defer lease.Release()

	destroyed := c.publishSentinel(p)

	ctx, span := c.tracer.Start(lease.Context(), "pagecache.load_by_block_id")
	span.SetAttributes(attribute.Int64("block_id", int64(id)))
	defer span.End()

	buf := c.serializer.Malloc()
	home := c.serializer.HomeContext()

	tok, err := c.serializer.IndexRead(home, id)
	if err != nil {
		err = fmt.Errorf("%w: block %d: %v", ErrIndexRead, id, err)
	} else if err = c.ioAccount.Acquire(ctx); err == nil {
		err = c.serializer.BlockRead(home, tok, buf)
		c.ioAccount.Release()
		if err != nil {
			err = fmt.Errorf("%w: block %d: %v", ErrSerializerRead, id, err)
		}
	}

	c.commitLoad(p, destroyed, span, func() {
		if err != nil {
			p.loadErr = err
			return
		}
		p.size = tok.Size()
		p.bytes = buf
		p.token = tok
		c.evicter.AddNowLoadedSize(p.size)
		c.metrics.recordLoad(p.size)
	}, err)
}

// loadUsingToken is the reload path fired from addWaiter when a page
// has a token but no resident bytes (it was previously evicted). Only
// bytes are filled on completion; the token was already on the page.
func (c *Cache) loadUsingToken(p *Page) {
	lease := c.drainer.Lease("load_using_token")
	defer lease.Release()

	destroyed := c.publishSentinel(p)

	var tok Token
	c.run(func() { tok = p.token })
	if tok == nil {
		invariantf("loadUsingToken spawned for a page with no token")
	}

	ctx, span := c.tracer.Start(lease.Context(), "pagecache.load_using_token")
	span.SetAttributes(attribute.Int64("block_id", int64(tok.BlockID())))
	defer span.End()

	buf := c.serializer.Malloc()
	home := c.serializer.HomeContext()

	var err error
	if err = c.ioAccount.Acquire(ctx); err == nil {
		err = c.serializer.BlockRead(home, tok, buf)
		c.ioAccount.Release()
		if err != nil {
			err = fmt.Errorf("%w: block %d: %v", ErrSerializerRead, tok.BlockID(), err)
		}
	}

	c.commitLoad(p, destroyed, span, func() {
		if err != nil {
			p.loadErr = err
			return
		}
		p.bytes = buf
		c.evicter.AddNowLoadedSize(p.size)
		c.metrics.recordLoad(p.size)
	}, err)
}

// loadFromCopyee is construction mode 4's loader: pin the copyee across
// the suspension with a transient Ptr, await its bytes through a local
// Acq, then memcpy into a fresh buffer.
func (c *Cache) loadFromCopyee(p *Page, copyee *Page) {
	lease := c.drainer.Lease("load_from_copyee")
	defer lease.Release()

	destroyed := c.publishSentinel(p)

	ctx, span := c.tracer.Start(lease.Context(), "pagecache.load_from_copyee")
	defer span.End()

	copyeePtr := &Ptr{}
	copyeePtr.bind(c, copyee)
	defer copyeePtr.Reset()

	acq := &Acq{}
	acq.Init(c, copyee, ReadAccess)
	defer acq.Close()

	copyeeBuf, err := acq.ReadBuf(ctx)
	var (
		buf       []byte
		copiedLen uint32
	)
	if err == nil {
		copyeeSize, sizeErr := acq.BufSize(ctx)
		if sizeErr != nil {
			err = sizeErr
		} else {
			buf = c.serializer.Malloc()
			copiedLen = copyeeSize
			copy(buf, copyeeBuf[:copyeeSize])
		}
	}

	c.commitLoad(p, destroyed, span, func() {
		if err != nil {
			p.loadErr = err
			return
		}
		p.size = copiedLen
		p.bytes = buf
		c.evicter.AddNowLoadedSize(p.size)
		c.metrics.recordLoad(p.size)
	}, err)
}

// publishSentinel installs a fresh destroy sentinel on p, which every
// loader does right after taking its lease and before it can suspend.
// If the page is destroyed while the loader is suspended,
// Page.removeSnapshotter writes true through this pointer; if it was
// already destroyed before the loader ran, the sentinel starts out true.
func (c *Cache) publishSentinel(p *Page) *bool {
	destroyed := new(bool)
	c.run(func() {
		if p.destroyPtr != nil {
			invariantf("page already has a load in flight (invariant: at most one load per page)")
		}
		if p.snapshotRefs == 0 {
			// Destroyed before this loader got to run: abandon at commit.
			*destroyed = true
			return
		}
		p.destroyPtr = destroyed
	})
	return destroyed
}

// commitLoad is the shared non-suspending commit phase: check the
// sentinel, and either discard the loader's work or apply it, clear the
// sentinel, recompute the eviction bag, and pulse waiters. commit runs
// entirely inside one Cache.run call.
func (c *Cache) commitLoad(p *Page, destroyed *bool, span trace.Span, apply func(), loadErr error) {
	c.run(func() {
		if *destroyed {
			span.SetAttributes(attribute.Bool("abandoned", true))
			return
		}
		old := c.evicter.CorrectEvictionCategory(p)
		p.destroyPtr = nil
		p.loading = false
		apply()
		c.evicter.ChangeToCorrectEvictionBag(old, p)
		p.pulseWaiters(loadErr)
	})
}
