package rudo

import (
	"go.uber.org/atomic"
)

// tlab is a thread-local allocation buffer, the fast allocation path for
// one size class.
type tlab struct {
	ptr   uintptr
	limit uintptr
	page  *pageHeader
}

// LocalHeap is one worker's private heap: the TLABs, the pages this
// worker owns, and its per-class free-page lists. Page membership and
// large-object lookups go through the process-wide pageIndex and segment
// manager maps, not through structures held here.
type LocalHeap struct {
	owner uint64

	tlabs [numSizeClasses]tlab

	pages []*pageHeader // every page this worker owns, small and large alike; the sole per-worker iteration surface for sweeping

	freePages [numSizeClasses][]*pageHeader // pages with a non-empty free list

	youngBytes atomic.Uint64
	oldBytes   atomic.Uint64

	minAddr uintptr
	maxAddr uintptr
}

func newLocalHeap(owner uint64) *LocalHeap {
	return &LocalHeap{owner: owner}
}

func (h *LocalHeap) trackRange(base, end uintptr) {
	if h.minAddr == 0 || base < h.minAddr {
		h.minAddr = base
	}
	if end > h.maxAddr {
		h.maxAddr = end
	}
}

// allocRaw is the generic-erased allocation entry point behind New and
// NewCyclicWeak: returns the address of a freshly allocated (uninitialized
// payload) box header sized and aligned for desc. Every caller writes the
// full payload value immediately afterward, so allocRaw itself never
// needs to zero a reused slot's leftover free-list linkage.
func (w *Worker) allocRaw(desc *typeDescriptor) uintptr {
	w.checkSafepoint()

	headerPad := alignUp(boxHeaderSize, desc.align)
	total := headerPad + desc.size

	if desc.align > pageSize {
		panic("rudo: type alignment exceeds page size")
	}

	h := w.heap
	if total > maxSmallSize {
		return w.allocLarge(desc, total, headerPad)
	}

	classIdx := sizeToClass(total)
	if classIdx < 0 {
		return w.allocLarge(desc, total, headerPad)
	}
	if !classSatisfiesAlign(classIdx, desc.align) {
		panic("rudo: type alignment exceeds size class alignment")
	}

	t := &h.tlabs[classIdx]
	if t.ptr+uintptr(classSizes[classIdx]) <= t.limit {
		addr := t.ptr
		t.ptr += uintptr(classSizes[classIdx])
		idx := t.page.slotIndexForOffset(addr - t.page.base - uintptr(t.page.headerSize))
		t.page.setAllocated(idx)
		h.youngBytes.Add(uint64(classSizes[classIdx]))
		return addr
	}

	return w.allocSlow(classIdx)
}

// allocSlow is the slow path: try an existing page's free list before
// asking the segment manager for a fresh one.
func (w *Worker) allocSlow(classIdx int) uintptr {
	w.checkSafepoint()
	h := w.heap

	for _, p := range h.freePages[classIdx] {
		if idx, ok := p.popFreeSlot(); ok {
			p.setAllocated(idx)
			h.youngBytes.Add(uint64(classSizes[classIdx]))
			return p.slotAddr(idx)
		}
	}

	w.refillTLAB(classIdx)
	t := &h.tlabs[classIdx]
	addr := t.ptr
	t.ptr += uintptr(classSizes[classIdx])
	idx := t.page.slotIndexForOffset(addr - t.page.base - uintptr(t.page.headerSize))
	t.page.setAllocated(idx)
	h.youngBytes.Add(uint64(classSizes[classIdx]))
	return addr
}

// refillTLAB is the full TLAB refill slow path: safepoint check, request
// a page, initialize its header, install it.
func (w *Worker) refillTLAB(classIdx int) {
	h := w.heap
	base := segments.mapPages(1, w)
	blockSize := classSizes[classIdx]
	headerSize := uint32(alignUp(16, 16)) // conservative alignment ceiling for shared small pages (see box.go)
	objCount := uint32((pageSize - uintptr(headerSize)) / uintptr(blockSize))
	if objCount > maxSlotsPerPage {
		objCount = maxSlotsPerPage
	}

	p := newPageHeader(base, pageSize, blockSize, headerSize, objCount, genYoung, false, h.owner)
	h.pages = append(h.pages, p)
	h.freePages[classIdx] = append(h.freePages[classIdx], p)
	h.trackRange(base, base+pageSize)
	registerPage(p)

	t := &h.tlabs[classIdx]
	t.page = p
	t.ptr = p.slotAddr(0)
	t.limit = p.slotAddr(objCount)

	log().Debugw("rudo: refilled TLAB", "worker", h.owner, "class", blockSize, "slots", objCount)
}

// allocLarge reserves enough contiguous pages for total bytes, one object
// per run, and registers it in the global large-object map for
// interior-pointer lookup.
func (w *Worker) allocLarge(desc *typeDescriptor, total, headerPad uintptr) uintptr {
	h := w.heap
	headerSize := uint32(headerPad)
	npages := int((uintptr(headerSize) + desc.size + pageSize - 1) / pageSize)
	base := segments.mapPages(npages, w)

	// The box header sits at base, so the page's single slot starts at
	// offset 0 (slotAddr(0) == base); headerPad only separates the box
	// header from its payload.
	p := newPageHeader(base, pageSize*uintptr(npages), uint32(desc.size), 0, 1, genYoung, true, h.owner)
	h.pages = append(h.pages, p)
	info := largeObjectInfo{headAddr: base, objectSize: desc.size, headerSize: uintptr(headerSize), numPages: npages}
	segments.registerLargeObject(base, info)
	h.trackRange(base, base+pageSize*uintptr(npages))
	registerPage(p)

	p.setAllocated(0)
	h.youngBytes.Add(uint64(desc.size))
	log().Debugw("rudo: allocated large object", "worker", h.owner, "bytes", desc.size, "pages", npages)
	return base
}

// abandonUnderConstruction is the drop-guard path for NewCyclicWeak: the
// builder closure panicked, so the box must be torn down without ever
// running T's destructor (it was never initialized).
func (w *Worker) abandonUnderConstruction(addr uintptr) {
	h := headerAt(addr)
	h.weakFlags.Store(packWeak(0, flagValueDead))
	// Leave reclamation to the next sweep: the slot is marked value-dead
	// and its weak count is zeroed (the Weak handed to the builder is
	// released along with it), so phase 2 frees it once swept, same as
	// any other dead object.
}

// promoteSmallPage flips p's generation tag to old and retires every
// reference a fast path still holds to it as a young page: its entry in
// h.freePages[classIdx] (so allocSlow stops handing out its free slots as
// young) and its TLAB if p is the class's current bump-allocation page (so
// the next allocation in that class refills into a genuinely young page
// instead of bump-allocating into what is now an old page). Call this only
// once p has at least one surviving object; a page swept down to zero
// survivors should stay young and in the free pool for full reuse instead.
func (h *LocalHeap) promoteSmallPage(p *pageHeader, classIdx int) {
	p.promote()

	free := h.freePages[classIdx]
	for i, fp := range free {
		if fp == p {
			h.freePages[classIdx] = append(free[:i], free[i+1:]...)
			break
		}
	}

	if t := &h.tlabs[classIdx]; t.page == p {
		t.ptr = 0
		t.limit = 0
		t.page = nil
	}
}

// currentLiveBytes sums young+old bytes across the heap, used by
// totalHeapBytes; zero once every object in the heap has been reclaimed.
func (h *LocalHeap) currentLiveBytes() uint64 {
	return h.youngBytes.Load() + h.oldBytes.Load()
}
