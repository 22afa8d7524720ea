package serializer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupFileSerializer(t *testing.T) *FileSerializer {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "blocks.db"), 64)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestPutThenReadRoundTrip(t *testing.T) {
	s := setupFileSerializer(t)

	id, err := s.Put([]byte("hello, block"))
	require.NoError(t, err)

	tok, err := s.IndexRead(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, tok.BlockID())
	require.Equal(t, uint32(len("hello, block")), tok.Size())

	buf := s.Malloc()
	require.NoError(t, s.BlockRead(context.Background(), tok, buf))
	require.Equal(t, "hello, block", string(buf[:tok.Size()]))
}

func TestIndexReadMissingBlock(t *testing.T) {
	s := setupFileSerializer(t)
	_, err := s.IndexRead(context.Background(), 999)
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestPutRejectsOversizeBlock(t *testing.T) {
	s := setupFileSerializer(t)
	_, err := s.Put(make([]byte, 65))
	require.ErrorIs(t, err, ErrShortWrite)
}

func TestBlockReadDetectsChecksumMismatch(t *testing.T) {
	s := setupFileSerializer(t)
	id, err := s.Put([]byte("intact"))
	require.NoError(t, err)
	tok, err := s.IndexRead(context.Background(), id)
	require.NoError(t, err)

	ft := tok.(Token)
	ft.checksum ^= 0xffffffff // corrupt the recorded checksum

	buf := s.Malloc()
	err = s.BlockRead(context.Background(), ft, buf)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReindexesOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.db")

	s1, err := Open(path, 32)
	require.NoError(t, err)
	id, err := s1.Put([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, 32)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s2.Close()) })

	tok, err := s2.IndexRead(context.Background(), id)
	require.NoError(t, err)
	buf := s2.Malloc()
	require.NoError(t, s2.BlockRead(context.Background(), tok, buf))
	require.Equal(t, "persisted", string(buf[:tok.Size()]))
}
