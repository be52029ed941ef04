package rudo

import (
	"math/bits"
	"os"
	"sync"
	"unsafe"

	"go.uber.org/atomic"
)

// pageIndex maps every page base (small or large, across every worker's
// heap) to its header. It exists so Cell[T].Set can find and dirty a page
// without needing to know which worker owns it: pages/TLABs are
// otherwise owner-only, but the dirty bitmap is explicitly atomic and
// cross-worker-writable (the whole point of a write barrier is that any
// worker mutating an old object marks it), so a shared index for this one
// lookup does not violate the owner-only rule for the rest of a
// LocalHeap's state.
var (
	pageIndexMu sync.RWMutex
	pageIndex   = map[uintptr]*pageHeader{}
)

func registerPage(p *pageHeader) {
	pageIndexMu.Lock()
	pageIndex[p.base] = p
	pageIndexMu.Unlock()
}

func unregisterPage(base uintptr) {
	pageIndexMu.Lock()
	delete(pageIndex, base)
	pageIndexMu.Unlock()
}

func lookupPage(base uintptr) (*pageHeader, bool) {
	pageIndexMu.RLock()
	p, ok := pageIndex[base]
	pageIndexMu.RUnlock()
	return p, ok
}

// markDirty implements the write-barrier side of the dirty-card scheme:
// if addr's owning page is in the old generation, set the dirty bit for
// its slot.
func markDirty(addr uintptr) {
	base := pageOf(addr)
	p, ok := lookupPage(base)
	if !ok || p.generationTag() != genOld {
		return
	}
	idx := p.slotIndexForOffset(addr - base - uintptr(p.headerSize))
	if idx < p.objectCount {
		p.setDirty(idx)
	}
}

// pageSize is queried once from the OS allocation granularity at process
// start. os.Getpagesize is the stdlib's canonical cross-platform way to
// ask the OS this; no ecosystem library does anything more than wrap the
// same syscall, so there is nothing to gain by depending on one here (the
// actual page mapping below does use golang.org/x/sys/unix).
var pageSize = uintptr(os.Getpagesize())

// maxSlotsPerPage bounds bitmap sizing: the largest slot count is the
// smallest size class (16 bytes) packed into the largest page, fixed at
// 4096 slots/page so the bitmaps never need to grow.
const maxSlotsPerPage = 4096

const pageMagic uint64 = 0x6764626f78706730 // "gdboxpg0" in hex-ish, identifies a rudo-owned page

// page flag bits.
const (
	flagLarge uint32 = 1 << iota
	flagOrphan
)

// generation tags. Monotonically non-decreasing per page.
const (
	genYoung uint32 = 0
	genOld   uint32 = 1
)

// pageHeader describes one page-aligned mapping rudo owns. It is an
// ordinary Go value kept in pageIndex, not stored inside the mapping.
// Bitmaps are atomic-word slices so the write barrier (dirty) and the
// marker (mark) can set bits without a lock. allocated is a plain
// bitmap, mutated only by the owning worker outside a stop-the-world
// collection.
type pageHeader struct {
	magic       uint64
	base        uintptr // address of this mapping (== page-aligned start)
	mapSize     uintptr // total bytes mapped (pageSize for small pages, N*pageSize for large)
	blockSize   uint32  // size class block size, or full object size for large pages
	headerSize  uint32  // offset from base to the first slot
	objectCount uint32  // maximum slots in this page

	generation atomic.Uint32
	flags      atomic.Uint32

	mark      []atomic.Uint64
	dirty     []atomic.Uint64
	allocated []uint64 // plain bitmap, owner-thread-only outside STW

	freeListHead int64 // index of first free slot, or -1; owner-thread-only

	ownerWorkerID uint64
}

func bitmapWords(slots uint32) int {
	return (int(slots) + 63) / 64
}

func newPageHeader(base uintptr, mapSize uintptr, blockSize, headerSize, objectCount uint32, generation uint32, large bool, owner uint64) *pageHeader {
	words := bitmapWords(objectCount)
	h := &pageHeader{
		magic:         pageMagic,
		base:          base,
		mapSize:       mapSize,
		blockSize:     blockSize,
		headerSize:    headerSize,
		objectCount:   objectCount,
		mark:          make([]atomic.Uint64, words),
		dirty:         make([]atomic.Uint64, words),
		allocated:     make([]uint64, words),
		freeListHead:  -1,
		ownerWorkerID: owner,
	}
	h.generation.Store(generation)
	if large {
		h.flags.Store(flagLarge)
	}
	return h
}

func (h *pageHeader) isLarge() bool   { return h.flags.Load()&flagLarge != 0 }
func (h *pageHeader) isOrphan() bool  { return h.flags.Load()&flagOrphan != 0 }
func (h *pageHeader) setOrphan()      { h.flags.Or(flagOrphan) }
func (h *pageHeader) generationTag() uint32 { return h.generation.Load() }

// promote bumps the generation tag to old. Per invariant, generation is
// monotonically non-decreasing, so this is a no-op once already old.
func (h *pageHeader) promote() { h.generation.Store(genOld) }

// slotAddr returns the start address of slot i, which is where that
// slot's box header lives (the payload follows it, see box.go).
func (h *pageHeader) slotAddr(i uint32) uintptr {
	return h.base + uintptr(h.headerSize) + uintptr(i)*uintptr(h.blockSize)
}

// slotIndexForOffset maps a byte offset from the page base (beyond the
// header) back to its containing slot index. Division rounds down, which
// is exactly what makes interior pointers work: an offset that lands
// mid-slot still resolves to the slot it's inside.
func (h *pageHeader) slotIndexForOffset(offset uintptr) uint32 {
	return uint32(offset / uintptr(h.blockSize))
}

func testBit(words []atomic.Uint64, i uint32) bool {
	return words[i/64].Load()&(1<<(i%64)) != 0
}

func setBitAtomic(words []atomic.Uint64, i uint32) {
	w := &words[i/64]
	mask := uint64(1) << (i % 64)
	for {
		old := w.Load()
		if old&mask != 0 {
			return
		}
		if w.CAS(old, old|mask) {
			return
		}
	}
}

// setBitAtomicIfClear sets the bit and reports whether it was already set
// before this call (false if this call is the one that set it). Used by
// the marker to skip an object it has already visited.
func setBitAtomicIfClear(words []atomic.Uint64, i uint32) (wasAlreadySet bool) {
	w := &words[i/64]
	mask := uint64(1) << (i % 64)
	for {
		old := w.Load()
		if old&mask != 0 {
			return true
		}
		if w.CAS(old, old|mask) {
			return false
		}
	}
}

func clearBitAtomic(words []atomic.Uint64, i uint32) {
	w := &words[i/64]
	mask := uint64(1) << (i % 64)
	for {
		old := w.Load()
		if old&mask == 0 {
			return
		}
		if w.CAS(old, old&^mask) {
			return
		}
	}
}

func clearAllBits(words []atomic.Uint64) {
	for i := range words {
		words[i].Store(0)
	}
}

func testPlainBit(words []uint64, i uint32) bool {
	return words[i/64]&(1<<(i%64)) != 0
}

func setPlainBit(words []uint64, i uint32) {
	words[i/64] |= 1 << (i % 64)
}

func clearPlainBit(words []uint64, i uint32) {
	words[i/64] &^= 1 << (i % 64)
}

func (h *pageHeader) isAllocated(i uint32) bool { return testPlainBit(h.allocated, i) }
func (h *pageHeader) setAllocated(i uint32)     { setPlainBit(h.allocated, i) }
func (h *pageHeader) clearAllocated(i uint32)   { clearPlainBit(h.allocated, i) }

// countAllocated returns the number of currently allocated slots, used
// to shift byte-accounting between generations across a sweep+promote.
func (h *pageHeader) countAllocated() uint32 {
	var n uint32
	for _, word := range h.allocated {
		n += uint32(bits.OnesCount64(word))
	}
	return n
}

func (h *pageHeader) isMarked(i uint32) bool { return testBit(h.mark, i) }
func (h *pageHeader) isDirty(i uint32) bool  { return testBit(h.dirty, i) }
func (h *pageHeader) setDirty(i uint32)      { setBitAtomic(h.dirty, i) }
func (h *pageHeader) clearDirty(i uint32)    { clearBitAtomic(h.dirty, i) }
func (h *pageHeader) clearAllDirty()         { clearAllBits(h.dirty) }
func (h *pageHeader) clearAllMarks()         { clearAllBits(h.mark) }

// popFreeSlot and pushFreeSlot thread a free list through dead slots'
// payload bytes: the first word of a free slot stores the next free
// slot's index (or -1), so no separate free-list storage is needed.
func (h *pageHeader) popFreeSlot() (uint32, bool) {
	if h.freeListHead < 0 {
		return 0, false
	}
	idx := uint32(h.freeListHead)
	next := *(*int64)(unsafe.Pointer(h.slotAddr(idx)))
	h.freeListHead = next
	return idx, true
}

func (h *pageHeader) pushFreeSlot(idx uint32) {
	*(*int64)(unsafe.Pointer(h.slotAddr(idx))) = h.freeListHead
	h.freeListHead = int64(idx)
}

// pageOf computes the page-aligned base address containing addr.
func pageOf(addr uintptr) uintptr {
	return addr &^ (pageSize - 1)
}
