// Package pagecache implements the page layer of a buffer cache: the
// in-memory representation of disk blocks, copy-on-write snapshotting,
// waiter tracking for blocks not yet resident, and cooperation with a
// pluggable eviction policy (see the Evicter interface).
//
// Invariants this package maintains at every point where a Page
// operation could suspend (it never does — see Cache.run):
//
//   - snapshotRefs == 0 iff the page is destroyed; a page at zero must
//     have no waiters attached.
//   - at most one load is in flight per page (Page.destroyPtr is
//     non-nil for the duration).
//   - while loading, bytes is nil.
//   - bytes nil && token nil && !loading is unreachable, with one
//     documented exception: after a serializer read failure, the page
//     holds a terminal loadErr instead, and every subsequent waiter
//     (current and future) is pulsed with that error rather than
//     retried.
//   - a write acquisition only proceeds while waiters is non-empty, and
//     while no other write acquisition is already active on the same
//     page.
//   - token may only go from present to absent while waiters is
//     non-empty, i.e. under a write acquisition (WritePtr).
package pagecache
