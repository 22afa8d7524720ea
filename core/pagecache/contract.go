package pagecache

import "context"

// BlockID identifies a block on durable storage. It is an opaque
// identifier supplied by the serializer; the page layer never interprets
// its value.
type BlockID uint64

// Token is an owned, reference-counted handle asserting that a block ID
// currently maps to a particular durable image. While a Page holds a
// Token, its bytes (if resident) are byte-identical to the block on
// disk; the page drops its Token the moment a writer touches the bytes.
type Token interface {
	// BlockID is the block this token refers to.
	BlockID() BlockID
	// Size is the block's serialized size in bytes.
	Size() uint32
}

// Serializer is the on-disk format this cache loads blocks through and
// writes pages back to eventually (via a writeback path outside this
// package's scope). All methods must be safe to call concurrently with
// themselves; HomeContext identifies the execution context IndexRead and
// BlockRead actually run on.
type Serializer interface {
	// Malloc returns a freshly allocated buffer sized for one block.
	// Callers should allocate and eventually drop it from the same
	// logical owner Malloc was called from (see HomeContext).
	Malloc() []byte

	// HomeContext returns a context bound to the serializer's home
	// execution context. IndexRead and BlockRead must be invoked with a
	// context derived from (or equal to) this one.
	HomeContext() context.Context

	// IndexRead resolves a block ID to a Token. It does not itself
	// transfer bytes.
	IndexRead(ctx context.Context, id BlockID) (Token, error)

	// BlockRead fills buf with the bytes described by tok. buf must be
	// at least int(tok.Size()) bytes. BlockRead may block.
	BlockRead(ctx context.Context, tok Token, buf []byte) error
}

// BagHandle identifies the eviction category a Page belonged to before a
// recomputation; ChangeToCorrectEvictionBag uses it to find and remove
// the page from its old bag when committing a move to the new one.
type BagHandle interface{}

// Evicter is the out-of-scope collaborator that owns eviction policy.
// The page layer never decides what to evict; it only keeps an accurate
// category (bag) for every page so the evicter's policy has something
// correct to act on.
type Evicter interface {
	// NextAccessTime returns a fresh, monotonically increasing tick.
	NextAccessTime() uint64
	// ReadAheadAccessTime returns the designated "cold" access time used
	// to stamp read-ahead pages (construction mode 3): one less than the
	// evicter's initial tick, so a read-ahead page with no subsequent
	// access looks older than anything ever really accessed.
	ReadAheadAccessTime() uint64

	// AddNotYetLoaded registers a freshly constructed, not-yet-resident
	// page (construction modes 1 and 4).
	AddNotYetLoaded(p *Page)
	// AddToEvictableUnbacked registers a freshly allocated page with no
	// disk token (construction mode 2).
	AddToEvictableUnbacked(p *Page)
	// AddToEvictableDiskBacked registers a read-ahead page with bytes
	// and a token already in hand (construction mode 3).
	AddToEvictableDiskBacked(p *Page)

	// CorrectEvictionCategory computes the bag p currently belongs in
	// given its present state, without committing the move, and returns
	// a handle to p's current (old) bag.
	CorrectEvictionCategory(p *Page) BagHandle
	// ChangeToCorrectEvictionBag commits the move out of old and into
	// the bag CorrectEvictionCategory just computed.
	ChangeToCorrectEvictionBag(old BagHandle, p *Page)

	// AddNowLoadedSize notifies the evicter that n more bytes just
	// became resident (a load completed).
	AddNowLoadedSize(n uint32)
	// RemovePage deregisters p entirely; called once, right before the
	// page frees its own memory.
	RemovePage(p *Page)

	// PageIsInUnevictableBag supports debug assertions in callers; it is
	// never required for correctness of the page layer itself.
	PageIsInUnevictableBag(p *Page) bool
}
