package pagecache

// Reclaimer is an optional extension an Evicter may implement on top of
// the required contract. Evicter itself only has to keep categories
// accurate; deciding when and what to evict is policy, which this
// package leaves out of scope. Cache.Reclaim is a convenience for
// Evicter implementations that do want to expose a policy through this
// hook.
type Reclaimer interface {
	// Reclaimable returns, in the order they should be evicted, disk-backed
	// pages currently resident whose bytes could be freed without losing
	// data (a token is present), up to approximately maxBytes total.
	Reclaimable(maxBytes uint32) []*Page
}

// Reclaim asks the Evicter (if it implements Reclaimer) for eviction
// candidates and evicts each one that is still a valid candidate by the
// time its turn comes up. It returns the number of pages actually
// evicted. Candidates that gained a waiter or lost their bytes between
// being listed and being processed are skipped rather than forced.
func (c *Cache) Reclaim(maxBytes uint32) int {
	r, ok := c.evicter.(Reclaimer)
	if !ok {
		return 0
	}

	var candidates []*Page
	c.run(func() {
		candidates = r.Reclaimable(maxBytes)
	})

	evicted := 0
	for _, p := range candidates {
		c.run(func() {
			st := p.Snapshot()
			if !st.BytesResident || st.HasWaiters || !st.HasToken {
				return
			}
			old := c.evicter.CorrectEvictionCategory(p)
			p.evictSelf()
			c.evicter.ChangeToCorrectEvictionBag(old, p)
			evicted++
		})
	}
	return evicted
}
