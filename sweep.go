package rudo

// Two-phase sweep: phase 1 finalizes every unmarked object (runs its
// destructor, exactly once, ever) before phase 2 reclaims any storage.
// Splitting the phases matters because phase 1 must see the complete,
// stable mark bitmap for the whole page before anything is freed —
// freeing a slot first and finalizing second could hand a destructor a
// half-reclaimed sibling object it still points to.

// sweepSmallPage runs both phases over one small (non-large) page's
// slots and reports how many objects survived (remain allocated and
// reachable). Dead slots whose weak count has not yet reached zero stay
// allocated (value-dead, but the header itself survives so a pending
// Weak.Upgrade keeps observing a dead, not a freed-and-reused, slot): the
// weak count keeps the slot alive until the last Weak drops.
func sweepSmallPage(p *pageHeader) (survivors int) {
	// Phase 1: finalize.
	for i := uint32(0); i < p.objectCount; i++ {
		if !p.isAllocated(i) || p.isMarked(i) {
			continue
		}
		h := headerAt(p.slotAddr(i))
		if h.isValueDead() {
			continue // finalized on a previous cycle, still waiting on weak refs
		}
		desc := h.descriptor()
		desc.drop(h.payloadPtr(p.slotAddr(i)))
		h.setFlag(flagValueDead)
		noteObjectReclaimed()
	}

	// Phase 2: reclaim.
	for i := uint32(0); i < p.objectCount; i++ {
		if !p.isAllocated(i) {
			continue
		}
		if p.isMarked(i) {
			survivors++
			continue
		}
		h := headerAt(p.slotAddr(i))
		if h.weakCount() > 0 {
			continue // slot stays allocated until the last Weak drops
		}
		p.clearAllocated(i)
		p.pushFreeSlot(i)
	}

	p.clearAllMarks()
	return survivors
}

// sweepLargePage mirrors sweepSmallPage for a single-object large-object
// page. Reports whether the object survived; the caller is responsible
// for returning a dead large page's pages to the OS, since that also
// means unregistering it from every lookup structure.
func sweepLargePage(p *pageHeader) (survived bool) {
	if p.isMarked(0) {
		p.clearAllMarks()
		return true
	}
	h := headerAt(p.slotAddr(0))
	if !h.isValueDead() {
		desc := h.descriptor()
		desc.drop(h.payloadPtr(p.slotAddr(0)))
		h.setFlag(flagValueDead)
		noteObjectReclaimed()
	}
	if h.weakCount() > 0 {
		return true // can't unmap yet; still reachable via a pending Weak
	}
	return false
}

// reclaimLargePage removes a fully-dead large page from the page index
// and the global large-object map and returns its pages to the OS; the
// caller drops it from h.pages.
func reclaimLargePage(h *LocalHeap, p *pageHeader) {
	unregisterPage(p.base)
	segments.unregisterLargeObject(p.base)
	if err := munmapAnon(p.base, int(p.mapSize)); err != nil {
		log().Warnw("rudo: munmap of dead large object failed", "error", err, "base", p.base)
	}
}

// sweepOrphanPage sweeps an orphan (its original owner is gone, so there
// is no LocalHeap to update free lists on). An orphan with any slot still
// allocated (live, or dead but held by a Weak) stays mapped, orphaned,
// available for the next major GC to sweep again; an orphan, small or
// large, with nothing left allocated is unmapped immediately.
func sweepOrphanPage(o *orphanPage) (keep bool) {
	if o.large {
		if sweepLargePage(o.page) {
			return true
		}
		unregisterPage(o.page.base)
		segments.unregisterLargeObject(o.page.base)
		if err := munmapAnon(o.page.base, int(o.page.mapSize)); err != nil {
			log().Warnw("rudo: munmap of dead orphan large object failed", "error", err, "base", o.page.base)
		}
		return false
	}
	sweepSmallPage(o.page)
	if o.page.countAllocated() > 0 {
		return true
	}
	unregisterPage(o.page.base)
	segments.returnOrphanToOS(o)
	return false
}
