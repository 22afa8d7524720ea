// Package pagecachetest provides deterministic test doubles for
// pagecache.Serializer, used by this module's own tests and available
// to anything testing code built on top of pagecache.
package pagecachetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/riverstonedb/pagecache/core/pagecache"
)

// Token is the pagecachetest Serializer's Token implementation: a block
// ID plus a size, nothing else.
type Token struct {
	ID pagecache.BlockID
	Sz uint32
}

func (t Token) BlockID() pagecache.BlockID { return t.ID }
func (t Token) Size() uint32               { return t.Sz }

// ErrNotFound is returned by IndexRead for an id with no Put performed
// in advance.
var ErrNotFound = errors.New("pagecachetest: block not found")

// Serializer is an in-memory Serializer. BlockRead can be gated with a
// channel a test holds onto, so the test controls exactly when a load's
// suspension point resumes (see BlockReadGate).
type Serializer struct {
	mu     sync.Mutex
	blocks map[pagecache.BlockID][]byte

	// BlockReadGate, if non-nil, is received from once before every
	// BlockRead returns, letting a test hold a load's suspension point
	// open until it has bound whatever Acqs it wants bound first.
	BlockReadGate chan struct{}

	// FailBlockRead, if set, makes every subsequent BlockRead return
	// this error instead of copying bytes.
	FailBlockRead error
	// FailIndexRead, if set, makes every subsequent IndexRead fail.
	FailIndexRead error

	// BlockReadCalls counts completed BlockRead calls, so a test can
	// assert a reload was not launched twice for the same page.
	BlockReadCalls int
}

// New returns an empty Serializer.
func New() *Serializer {
	return &Serializer{blocks: make(map[pagecache.BlockID][]byte)}
}

// Put seeds a block's durable bytes, as if some prior writeback wrote
// them.
func (s *Serializer) Put(id pagecache.BlockID, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blocks[id] = cp
}

func (s *Serializer) Malloc() []byte {
	return make([]byte, 4096)
}

func (s *Serializer) HomeContext() context.Context {
	return context.Background()
}

func (s *Serializer) IndexRead(ctx context.Context, id pagecache.BlockID) (pagecache.Token, error) {
	if s.FailIndexRead != nil {
		return nil, s.FailIndexRead
	}
	s.mu.Lock()
	data, ok := s.blocks[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, id)
	}
	return Token{ID: id, Sz: uint32(len(data))}, nil
}

func (s *Serializer) BlockRead(ctx context.Context, tok pagecache.Token, buf []byte) error {
	if s.BlockReadGate != nil {
		select {
		case <-s.BlockReadGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.FailBlockRead != nil {
		return s.FailBlockRead
	}
	s.mu.Lock()
	data := s.blocks[tok.BlockID()]
	s.BlockReadCalls++
	s.mu.Unlock()
	copy(buf, data)
	return nil
}

// Evicter is a no-op Evicter: it accepts every registration call and
// tracks nothing, for tests that only care about the page/acq/ptr
// protocol and not eviction bookkeeping.
type Evicter struct {
	mu   sync.Mutex
	tick uint64
}

func NewEvicter() *Evicter { return &Evicter{} }

func (e *Evicter) NextAccessTime() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick++
	return e.tick
}

func (e *Evicter) ReadAheadAccessTime() uint64 { return 0 }

func (e *Evicter) AddNotYetLoaded(p *pagecache.Page)          {}
func (e *Evicter) AddToEvictableUnbacked(p *pagecache.Page)   {}
func (e *Evicter) AddToEvictableDiskBacked(p *pagecache.Page) {}

func (e *Evicter) CorrectEvictionCategory(p *pagecache.Page) pagecache.BagHandle { return nil }
func (e *Evicter) ChangeToCorrectEvictionBag(old pagecache.BagHandle, p *pagecache.Page) {}

func (e *Evicter) AddNowLoadedSize(n uint32)                     {}
func (e *Evicter) RemovePage(p *pagecache.Page)                  {}
func (e *Evicter) PageIsInUnevictableBag(p *pagecache.Page) bool { return false }
