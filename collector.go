package rudo

// Mark-sweep collection. Two flavors share the same marking primitive
// (markWorklist) and differ only in which generation is in-scope for
// marking and which pages get swept:
//
//   - minor: marks only young objects (old objects are treated as
//     implicitly live, discovered only through the dirty-card remembered
//     set), sweeps only young pages, promotes survivors.
//   - major: marks every reachable object regardless of generation,
//     sweeps every page including orphans, and (trivially) promotes
//     whatever young survivors remain, since after a major collection
//     the whole heap is treated as one generation again.
//
// Both run under the stop-the-world handshake coordinated by
// coordinator.go: by the time runCollection is called, every other
// worker is parked at a safepoint and the collector is free to touch
// shared mark/dirty bitmaps without further synchronization.

// Collect requests a collection, becoming the collector itself if no
// other worker already is mid-collection; otherwise it cooperates as an
// ordinary rendezvous participant and returns once that collection
// finishes. full selects a major collection (every generation) over a
// minor one (young generation plus the old→young remembered set).
func (w *Worker) Collect(full bool) {
	if w.inCollect {
		return // reentrant call from within a RudoDrop/RudoTrace callback; ignore
	}

	if !w.requestGCHandshake() {
		// Another worker is already collecting: park at its rendezvous if
		// it asked this worker to, then wait for it to finish rather than
		// racing a second collection in. A worker that was not asked to
		// park (it registered after the request) leaves the active count
		// while it waits, so the collector is not left waiting on it.
		w.checkSafepoint()
		registry.mu.Lock()
		if registry.gcInProgress {
			w.stackRoots = w.capturer.Capture()
			registry.active--
			registry.cond.Broadcast()
			for registry.gcInProgress {
				registry.cond.Wait()
			}
			registry.active++
		}
		registry.mu.Unlock()
		return
	}

	w.inCollect = true
	defer func() { w.inCollect = false }()

	w.waitForRendezvous()
	runCollection(w, full)
	w.resumeAllThreads()
}

func runCollection(collector *Worker, full bool) {
	// The collector never goes through enterRendezvous itself (it isn't
	// waiting on anyone), so its own conservative roots are never
	// captured unless we do it here.
	collector.stackRoots = collector.capturer.Capture()

	workers := allWorkersSnapshot()
	log().Infow("rudo: collection starting", "full", full, "workers", len(workers))

	if full {
		runMajorGC(workers)
	} else {
		runMinorGC(workers)
	}

	resetDropCounter()
	log().Infow("rudo: collection finished", "full", full)
}

// markWorklist drains an explicit work stack rather than recursing
// through Traceable.RudoTrace, since an object graph's depth is bounded
// only by user data and a native recursive trace could blow the
// goroutine's stack on a long chain. Traversal order is unspecified;
// only that every field gets visited. minor restricts traversal to
// young-generation objects; an edge into an old-generation object is
// simply not followed (old objects are considered live already during a
// minor collection; see the dirty-card seeding in seedDirtyOldRoots).
func markWorklist(roots []uintptr, minor bool) {
	stack := append([]uintptr(nil), roots...)
	for len(stack) > 0 {
		addr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		base := pageOf(addr)
		p, ok := lookupPage(base)
		if !ok || p.magic != pageMagic {
			continue
		}
		if minor && p.generationTag() == genOld {
			continue
		}

		var idx uint32
		if p.isLarge() {
			idx = 0
		} else {
			idx = p.slotIndexForOffset(addr - base - uintptr(p.headerSize))
		}
		if idx >= p.objectCount || !p.isAllocated(idx) {
			continue
		}
		if setBitAtomicIfClear(p.mark, idx) {
			continue // already marked by an earlier visit
		}

		h := headerAt(p.slotAddr(idx))
		desc := h.descriptor()
		payload := h.payloadPtr(p.slotAddr(idx))
		desc.trace(payload, func(child uintptr) {
			stack = append(stack, child)
		})
	}
}

// collectExplicitRoots gathers every conservative stack root, handle
// scope root, cross-thread root, and pinned test root across workers,
// resolving conservative candidates through findBoxFromPtr. These are
// the roots common to both minor and major collection.
func collectExplicitRoots(workers []*Worker) []uintptr {
	var roots []uintptr
	for _, w := range workers {
		scanWords(w.stackRoots, func(box uintptr) { roots = append(roots, box) })
		for _, hs := range w.scopes {
			hs.collect(func(addr uintptr) { roots = append(roots, addr) })
		}

		w.crossMu.Lock()
		for _, addr := range w.crossRoots {
			roots = append(roots, addr)
		}
		w.crossMu.Unlock()
	}
	roots = append(roots, testRootsSnapshot()...)
	return roots
}

// seedDirtyOldRoots implements the generational remembered set: for
// every dirty slot in an old-generation page, trace its children directly
// into the root set, since those children may be the only reason a young
// object is still reachable.
func seedDirtyOldRoots(workers []*Worker) []uintptr {
	var roots []uintptr
	for _, w := range workers {
		for _, p := range w.heap.pages {
			if p.generationTag() != genOld {
				continue
			}
			n := p.objectCount
			if p.isLarge() {
				n = 1
			}
			for i := uint32(0); i < n; i++ {
				if !p.isAllocated(i) || !p.isDirty(i) {
					continue
				}
				h := headerAt(p.slotAddr(i))
				desc := h.descriptor()
				payload := h.payloadPtr(p.slotAddr(i))
				desc.trace(payload, func(child uintptr) {
					roots = append(roots, child)
				})
			}
		}
	}
	return roots
}

// clearDirtyBits clears every old-generation page's dirty bitmap, run at
// the end of a minor collection once its remembered-set roots have been
// consumed.
func clearDirtyBits(workers []*Worker) {
	for _, w := range workers {
		for _, p := range w.heap.pages {
			if p.generationTag() == genOld {
				p.clearAllDirty()
			}
		}
	}
}

func runMinorGC(workers []*Worker) {
	roots := collectExplicitRoots(workers)
	roots = append(roots, seedDirtyOldRoots(workers)...)
	markWorklist(roots, true)

	for _, w := range workers {
		sweepAndPromoteYoung(w.heap)
	}
	clearDirtyBits(workers)
}

// sweepAndPromoteYoung sweeps every young page a worker owns and promotes
// each page that still holds an allocated slot afterward to the old
// generation; a small page swept down to zero allocated slots stays young,
// and a dead large page is unmapped and dropped from h.pages (promotion is
// a generation-tag flip, never an object copy: this collector never moves
// objects).
func sweepAndPromoteYoung(h *LocalHeap) {
	var live []*pageHeader
	for _, p := range h.pages {
		if p.generationTag() != genYoung {
			live = append(live, p)
			continue
		}
		if p.isLarge() {
			sz := uint64(p.blockSize)
			if sweepLargePage(p) {
				p.promote()
				h.youngBytes.Sub(sz)
				h.oldBytes.Add(sz)
				live = append(live, p)
			} else {
				h.youngBytes.Sub(sz)
				reclaimLargePage(h, p)
			}
			continue
		}

		before := p.countAllocated()
		sweepSmallPage(p)
		after := p.countAllocated()
		bs := uint64(p.blockSize)
		h.youngBytes.Sub(uint64(before) * bs)
		if after > 0 {
			h.promoteSmallPage(p, sizeToClass(uintptr(p.blockSize)))
			h.oldBytes.Add(uint64(after) * bs)
		}
		live = append(live, p)
	}
	h.pages = live
}

func runMajorGC(workers []*Worker) {
	for _, w := range workers {
		for _, p := range w.heap.pages {
			p.clearAllMarks()
		}
	}

	roots := collectExplicitRoots(workers)
	markWorklist(roots, false)

	for _, w := range workers {
		sweepAllAndPromote(w.heap)
	}

	for _, o := range segments.takeOrphans() {
		if sweepOrphanPage(o) {
			segments.mu.Lock()
			segments.orphans = append(segments.orphans, o)
			segments.mu.Unlock()
		}
	}

	for _, w := range workers {
		for _, p := range w.heap.pages {
			p.clearAllDirty()
		}
	}
}

func sweepAllAndPromote(h *LocalHeap) {
	var live []*pageHeader
	for _, p := range h.pages {
		wasYoung := p.generationTag() == genYoung

		if p.isLarge() {
			sz := uint64(p.blockSize)
			if sweepLargePage(p) {
				p.promote()
				if wasYoung {
					h.youngBytes.Sub(sz)
					h.oldBytes.Add(sz)
				}
				live = append(live, p)
			} else {
				if wasYoung {
					h.youngBytes.Sub(sz)
				} else {
					h.oldBytes.Sub(sz)
				}
				reclaimLargePage(h, p)
			}
			continue
		}

		before := p.countAllocated()
		sweepSmallPage(p)
		after := p.countAllocated()
		bs := uint64(p.blockSize)
		if wasYoung {
			h.youngBytes.Sub(uint64(before) * bs)
			if after > 0 {
				h.promoteSmallPage(p, sizeToClass(uintptr(p.blockSize)))
				h.oldBytes.Add(uint64(after) * bs)
			}
		} else {
			h.oldBytes.Sub(uint64(before-after) * bs)
		}
		live = append(live, p)
	}
	h.pages = live
}
