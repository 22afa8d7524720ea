// Package serializer provides a reference pagecache.Serializer backed by
// a single fixed-block-size file: a mutex-guarded *os.File, fixed-size
// slots addressed by offset, and a checksum on every block to catch
// silent corruption.
package serializer

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/riverstonedb/pagecache/core/pagecache"
)

// blockHeaderSize is the on-disk overhead per block: a uint32 length
// and a uint32 crc32 checksum, both little-endian.
const blockHeaderSize = 8

// Token identifies a block's location and expected checksum on disk.
type Token struct {
	id       pagecache.BlockID
	size     uint32
	offset   int64
	checksum uint32
}

func (t Token) BlockID() pagecache.BlockID { return t.id }
func (t Token) Size() uint32               { return t.size }

// FileSerializer is a pagecache.Serializer backed by one file of
// fixed-size slots. It does not implement writeback — committing a
// dirty page's bytes back to disk is explicitly outside the page
// layer's scope — but it does let a caller seed or append blocks via
// Put, which is how tests and a future writeback component would get
// bytes onto disk in the first place.
type FileSerializer struct {
	mu        sync.Mutex
	file      *os.File
	blockSize uint32
	index     map[pagecache.BlockID]Token
	nextSlot  int64
	closed    bool
}

// Open opens or creates a fixed-block-size store at path. blockSize
// bounds the largest block Put will accept.
func Open(path string, blockSize uint32) (*FileSerializer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	s := &FileSerializer{
		file:      f,
		blockSize: blockSize,
		index:     make(map[pagecache.BlockID]Token),
	}
	if err := s.rebuildIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// rebuildIndex scans the file slot by slot on open, trusting the
// checksum to tell a written slot from a blank one. A zero-length
// header with a zero checksum (the hole left behind a truncated or
// never-written slot) is skipped rather than treated as corruption.
func (s *FileSerializer) rebuildIndex() error {
	slotSize := int64(blockHeaderSize) + int64(s.blockSize)
	fi, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat: %v", ErrIO, err)
	}
	header := make([]byte, blockHeaderSize)
	for offset := int64(0); offset+blockHeaderSize <= fi.Size(); offset += slotSize {
		if _, err := s.file.ReadAt(header, offset); err != nil {
			return fmt.Errorf("%w: reading slot header at %d: %v", ErrIO, offset, err)
		}
		length := binary.LittleEndian.Uint32(header[0:4])
		checksum := binary.LittleEndian.Uint32(header[4:8])
		if length == 0 && checksum == 0 {
			continue
		}
		id := pagecache.BlockID(offset / slotSize)
		s.index[id] = Token{id: id, size: length, offset: offset, checksum: checksum}
	}
	s.nextSlot = (fi.Size() + slotSize - 1) / slotSize
	return nil
}

// Put writes data as a new block and returns its BlockID. Blocks are
// immutable once written; overwriting an existing id is not supported,
// matching a page's own rule that a token never changes what it points
// to once issued.
func (s *FileSerializer) Put(data []byte) (pagecache.BlockID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if uint32(len(data)) > s.blockSize {
		return 0, fmt.Errorf("%w: block of %d bytes exceeds block size %d", ErrShortWrite, len(data), s.blockSize)
	}

	slotSize := int64(blockHeaderSize) + int64(s.blockSize)
	id := pagecache.BlockID(s.nextSlot)
	offset := s.nextSlot * slotSize
	s.nextSlot++

	checksum := crc32.ChecksumIEEE(data)
	header := make([]byte, blockHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(header[4:8], checksum)

	if _, err := s.file.WriteAt(header, offset); err != nil {
		return 0, fmt.Errorf("%w: writing slot header at %d: %v", ErrIO, offset, err)
	}
	if _, err := s.file.WriteAt(data, offset+blockHeaderSize); err != nil {
		return 0, fmt.Errorf("%w: writing block data at %d: %v", ErrIO, offset+blockHeaderSize, err)
	}

	tok := Token{id: id, size: uint32(len(data)), offset: offset, checksum: checksum}
	s.index[id] = tok
	return id, nil
}

// Malloc returns a freshly allocated buffer sized for one block.
func (s *FileSerializer) Malloc() []byte {
	return make([]byte, s.blockSize)
}

// HomeContext returns context.Background(). This implementation has no
// execution-context affinity of its own; every method is safe to call
// from any goroutine, guarded by the internal mutex.
func (s *FileSerializer) HomeContext() context.Context {
	return context.Background()
}

// IndexRead resolves id to a Token, or ErrBlockNotFound.
func (s *FileSerializer) IndexRead(ctx context.Context, id pagecache.BlockID) (pagecache.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	tok, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrBlockNotFound, id)
	}
	return tok, nil
}

// BlockRead fills buf with tok's bytes and verifies the checksum
// recorded when the block was written.
func (s *FileSerializer) BlockRead(ctx context.Context, tok pagecache.Token, buf []byte) error {
	t, ok := tok.(Token)
	if !ok {
		return fmt.Errorf("serializer: token %T not produced by this FileSerializer", tok)
	}
	if uint32(len(buf)) < t.size {
		return fmt.Errorf("%w: buffer of %d bytes too small for block of %d bytes", ErrShortRead, len(buf), t.size)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	n, err := s.file.ReadAt(buf[:t.size], t.offset+blockHeaderSize)
	if err != nil {
		return fmt.Errorf("%w: reading block %d: %v", ErrIO, t.id, err)
	}
	if uint32(n) != t.size {
		return fmt.Errorf("%w: block %d: wanted %d bytes, got %d", ErrShortRead, t.id, t.size, n)
	}
	if crc32.ChecksumIEEE(buf[:t.size]) != t.checksum {
		return fmt.Errorf("%w: block %d", ErrChecksumMismatch, t.id)
	}
	return nil
}

// Close syncs and closes the underlying file.
func (s *FileSerializer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing on close: %v", ErrIO, err)
	}
	return s.file.Close()
}
