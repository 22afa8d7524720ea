package pagecache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Drainer is the process-wide structure that blocks shutdown until every
// outstanding load has released its lease. Every loader in load.go takes
// a lease before it can suspend and releases it in a defer.
type Drainer struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	draining bool
	logger   *zap.Logger
}

// NewDrainer returns a Drainer with no outstanding leases.
func NewDrainer() *Drainer {
	return &Drainer{logger: zap.NewNop()}
}

// SetLogger attaches a logger used to trace lease acquisition for
// debugging stuck shutdowns.
func (d *Drainer) SetLogger(l *zap.Logger) { d.logger = l }

// Lease registers one outstanding piece of work of the given kind
// ("load_by_block_id", "load_using_token", "load_from_copyee") and
// returns a handle the caller must Release exactly once. Taking a lease
// after Wait has been called is a programmer error: the caller should
// have stopped spawning new loads before draining.
func (d *Drainer) Lease(kind string) *Lease {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		invariantf("Drainer: lease requested for %q after draining started", kind)
	}
	d.wg.Add(1)
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	l := &Lease{id: uuid.New(), kind: kind, ctx: ctx, cancel: cancel, drainer: d}
	d.logger.Debug("pagecache: lease acquired", zap.String("lease_id", l.id.String()), zap.String("kind", kind))
	return l
}

// Wait blocks until every outstanding lease has been released, or ctx is
// done first. After the first call to Wait, no further leases may be
// taken.
func (d *Drainer) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lease is one outstanding piece of draining-sensitive work. Its Context
// is canceled when Release is called; Drainer.Wait does not cancel it.
// The loaders in load.go use it as the parent of their trace span and
// of the IOAccount acquire; Serializer calls receive the serializer's
// HomeContext instead, and the loaders only ever check the per-page
// destroy sentinel for abandonment.
type Lease struct {
	id      uuid.UUID
	kind    string
	ctx     context.Context
	cancel  context.CancelFunc
	drainer *Drainer
	done    atomic.Bool
}

// Context returns the lease's cancellation context.
func (l *Lease) Context() context.Context { return l.ctx }

// Release marks the lease's work as finished. Safe to call more than
// once; only the first call has an effect.
func (l *Lease) Release() {
	if !l.done.CompareAndSwap(false, true) {
		return
	}
	l.cancel()
	l.drainer.logger.Debug("pagecache: lease released", zap.String("lease_id", l.id.String()), zap.String("kind", l.kind))
	l.drainer.wg.Done()
}
