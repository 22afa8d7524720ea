package pagecache

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// IOAccount bounds the number of BlockReads the cache has in flight at
// once: a thin wrapper over a weighted semaphore so a future version
// could weight reads by expected cost instead of always acquiring one
// unit.
type IOAccount struct {
	sem *semaphore.Weighted
}

// NewIOAccount returns an IOAccount permitting up to maxConcurrent
// in-flight reads.
func NewIOAccount(maxConcurrent int64) *IOAccount {
	return &IOAccount{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Acquire blocks until a read slot is available or ctx is done.
func (a *IOAccount) Acquire(ctx context.Context) error {
	return a.sem.Acquire(ctx, 1)
}

// Release returns a read slot to the account.
func (a *IOAccount) Release() {
	a.sem.Release(1)
}
