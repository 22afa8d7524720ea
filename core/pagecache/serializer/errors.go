package serializer

import "errors"

// Sentinel errors returned by FileSerializer.
var (
	ErrBlockNotFound    = errors.New("serializer: block not found")
	ErrIO               = errors.New("serializer: i/o error")
	ErrChecksumMismatch = errors.New("serializer: checksum mismatch")
	ErrShortRead        = errors.New("serializer: short read")
	ErrShortWrite       = errors.New("serializer: short write")
	ErrClosed           = errors.New("serializer: closed")
)
