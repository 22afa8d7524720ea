package pagecache

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by loaders and surfaced through Acq.Err.
var (
	ErrSerializerRead = errors.New("pagecache: serializer failed to read block")
	ErrIndexRead      = errors.New("pagecache: serializer failed to resolve block id")
)

// InvariantError marks a programmer error in the caller: a fatal,
// abort-the-process condition (snapshot_refs going negative, reaching an
// unloadable state, double-init of an Acq, and so on). This package
// never swallows them: a panic on the Cache's home goroutine is
// recovered only to be re-raised in the calling goroutine (see
// Cache.run).
type InvariantError struct {
	msg string
}

func (e *InvariantError) Error() string { return "pagecache: invariant violation: " + e.msg }

func invariantf(format string, args ...any) {
	panic(&InvariantError{msg: fmt.Sprintf(format, args...)})
}
