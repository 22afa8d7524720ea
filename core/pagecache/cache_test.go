package pagecache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverstonedb/pagecache/core/pagecache"
	"github.com/riverstonedb/pagecache/core/pagecache/pagecachetest"
)

func newTestCache(t *testing.T, ser *pagecachetest.Serializer) *pagecache.Cache {
	t.Helper()
	c := pagecache.NewCache(ser, pagecachetest.NewEvicter())
	t.Cleanup(c.Close)
	return c
}

func TestLoadByBlockIDRoundTrip(t *testing.T) {
	ser := pagecachetest.New()
	ser.Put(1, []byte("hello block"))
	c := newTestCache(t, ser)

	ptr := c.NewPtrFromBlockID(1)
	defer ptr.Reset()

	acq := c.NewAcq(ptr, pagecache.ReadAccess)
	defer acq.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	buf, err := acq.ReadBuf(ctx)
	require.NoError(t, err)

	sz, err := acq.BufSize(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello block", string(buf[:sz]))
}

// TestLoadRace reproduces scenario 1 from the design notes: two Acqs
// bind to the same not-yet-loaded page while its load is in flight. Both
// must be pulsed once the single load commits; nothing spawns a second
// load.
func TestLoadRace(t *testing.T) {
	ser := pagecachetest.New()
	ser.Put(7, []byte("racing bytes"))
	ser.BlockReadGate = make(chan struct{})
	c := newTestCache(t, ser)

	ptr := c.NewPtrFromBlockID(7)
	defer ptr.Reset()

	a1 := c.NewAcq(ptr, pagecache.ReadAccess)
	defer a1.Close()
	a2 := c.NewAcq(ptr, pagecache.ReadAccess)
	defer a2.Close()

	select {
	case <-a1.Ready():
		t.Fatal("a1 became ready before the gated BlockRead unblocked")
	case <-time.After(20 * time.Millisecond):
	}

	close(ser.BlockReadGate)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a1.Await(ctx))
	require.NoError(t, a2.Await(ctx))
}

// TestAbandonedLoad reproduces scenario 2: the last Ptr referencing a
// page is Reset while its load is still in flight. The load's commit
// phase must observe the destroy sentinel and discard its work rather
// than touching a page that no longer exists.
func TestAbandonedLoad(t *testing.T) {
	ser := pagecachetest.New()
	ser.Put(3, []byte("never committed"))
	ser.BlockReadGate = make(chan struct{})
	c := newTestCache(t, ser)

	ptr := c.NewPtrFromBlockID(3)
	ptr.Reset()

	close(ser.BlockReadGate)
	// Give the loader's goroutine a chance to run its commit phase; there
	// is nothing to await here since nothing ever bound an Acq to this
	// page; the assertion is only that this does not panic or deadlock.
	time.Sleep(20 * time.Millisecond)
}

func TestSerializerReadFailureSurfacesOnAcq(t *testing.T) {
	ser := pagecachetest.New()
	wantErr := errors.New("disk on fire")
	ser.FailBlockRead = wantErr
	ser.Put(9, []byte("doomed"))
	c := newTestCache(t, ser)

	ptr := c.NewPtrFromBlockID(9)
	defer ptr.Reset()

	acq := c.NewAcq(ptr, pagecache.ReadAccess)
	defer acq.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := acq.Await(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, pagecache.ErrSerializerRead)

	// A second waiter arriving after the page already failed terminally
	// observes the same error immediately, without a second load attempt.
	acq2 := c.NewAcq(ptr, pagecache.ReadAccess)
	defer acq2.Close()
	err2 := acq2.Await(ctx)
	require.ErrorIs(t, err2, pagecache.ErrSerializerRead)
}

func TestIndexReadFailureSurfacesOnAcq(t *testing.T) {
	ser := pagecachetest.New()
	c := newTestCache(t, ser)

	ptr := c.NewPtrFromBlockID(42) // never Put, so IndexRead fails with ErrNotFound
	defer ptr.Reset()

	acq := c.NewAcq(ptr, pagecache.ReadAccess)
	defer acq.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := acq.Await(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, pagecache.ErrIndexRead)
}

func TestWriteDetachesToken(t *testing.T) {
	ser := pagecachetest.New()
	ser.Put(5, []byte("original"))
	c := newTestCache(t, ser)

	ptr := c.NewPtrFromBlockID(5)
	defer ptr.Reset()

	acq := c.NewAcq(ptr, pagecache.WriteAccess)
	defer acq.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf, err := acq.WriteBuf(ctx)
	require.NoError(t, err)
	copy(buf, []byte("mutated!"))

	st := ptr.GetForRead().Snapshot()
	require.False(t, st.HasToken, "token should be detached once a writer has touched the page")
}

func TestConcurrentWritersConflict(t *testing.T) {
	ser := pagecachetest.New()
	ser.Put(11, []byte("shared"))
	c := newTestCache(t, ser)

	ptr := c.NewPtrFromBlockID(11)
	defer ptr.Reset()

	a1 := c.NewAcq(ptr, pagecache.WriteAccess)
	defer a1.Close()

	require.Panics(t, func() {
		a2 := &pagecache.Acq{}
		a2.Init(c, ptr.GetForRead(), pagecache.WriteAccess)
	})
}
