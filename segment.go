package rudo

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Heap hint addresses, compile-time constants per pointer width. mmapAnon
// does not pass these hints to mmap (the kernel picks the address);
// instead rudo implements the
// coloring filter they exist to support: once the segment manager has
// mapped its first page, it derives expectedPrefix from the actual high
// bits the OS handed back and uses that to fast-reject stack noise,
// rather than assuming a literal MAP_FIXED hint landed exactly on
// heapHint64/heapHint32.
const (
	heapHint64 = 0x0000_6000_0000_0000
	heapHint32 = 0x4000_0000
	highMask   = ^uintptr(0) << 40 // top 24 bits on a 64-bit address space
)

// segmentManager is the process-wide singleton that serializes page
// allocation from the OS, holds the quarantine list, and tracks orphan
// pages.
type segmentManager struct {
	mu sync.Mutex

	expectedPrefix uintptr
	prefixKnown    bool

	quarantine []uintptr // blacklisted page bases, never reused

	largeObjects map[uintptr]largeObjectInfo // global large-object map, keyed by head page base

	orphans []*orphanPage
}

type largeObjectInfo struct {
	headAddr   uintptr
	objectSize uintptr
	headerSize uintptr
	numPages   int
}

type orphanPage struct {
	page       *pageHeader
	large      bool
	origOwner  uint64
}

var segments = &segmentManager{
	largeObjects: make(map[uintptr]largeObjectInfo),
}

// mapPages requests n contiguous pages from the OS via mmap, blacklisting
// and retrying on a contaminated mapping. Failure to map is fatal
// (process abort).
func (sm *segmentManager) mapPages(n int, w *Worker) uintptr {
	length := int(pageSize) * n
	for attempt := 0; ; attempt++ {
		base, err := mmapAnon(length)
		if err != nil {
			log().Errorw("rudo: mmap failed, aborting", "error", err, "length", length)
			panic(fmt.Sprintf("rudo: out of memory mapping %d bytes: %v", length, err))
		}

		sm.mu.Lock()
		if !sm.prefixKnown {
			sm.expectedPrefix = base & highMask
			sm.prefixKnown = true
		}
		sm.mu.Unlock()

		if sm.isContaminated(base, uintptr(length), w) {
			log().Warnw("rudo: quarantining contaminated page", "base", base)
			sm.mu.Lock()
			sm.quarantine = append(sm.quarantine, base)
			sm.mu.Unlock()
			continue
		}
		return base
	}
}

// isContaminated captures the calling goroutine's conservative root
// snapshot and checks whether any candidate word falls inside the freshly
// mapped range — if so, a stale stack value would falsely root this page
// before anything has been allocated into it.
//
// A masked-comparison trick (XOR against a known constant to hide the
// true range from the scanner until the final check) is sometimes used to
// defeat register-caching optimizations in a native compiler; Go's
// compiler does not speculatively keep derived pointers live across this
// call in a way that would matter here, so the comparison below is a
// direct range check instead.
func (sm *segmentManager) isContaminated(base, length uintptr, w *Worker) bool {
	end := base + length
	var words []uintptr
	if w != nil {
		words = w.capturer.Capture()
	}
	for _, word := range words {
		if word >= base && word < end {
			return true
		}
	}
	return false
}

func mmapAnon(length int) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, err
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b))), nil
}

func munmapAnon(base uintptr, length int) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(base)), length)
	return unix.Munmap(b)
}

// colorFilter is the fast pointer filter: a single mask compare that
// discards the vast majority of non-heap stack words before any deeper
// geometry check runs.
func (sm *segmentManager) colorFilter(addr uintptr) bool {
	sm.mu.Lock()
	known := sm.prefixKnown
	prefix := sm.expectedPrefix
	sm.mu.Unlock()
	if !known {
		return true // nothing mapped yet; let the slower path decide
	}
	return addr&highMask == prefix
}

func (sm *segmentManager) registerLargeObject(base uintptr, info largeObjectInfo) {
	sm.mu.Lock()
	sm.largeObjects[base] = info
	sm.mu.Unlock()
}

func (sm *segmentManager) unregisterLargeObject(base uintptr) {
	sm.mu.Lock()
	delete(sm.largeObjects, base)
	sm.mu.Unlock()
}

func (sm *segmentManager) lookupLargeObject(base uintptr) (largeObjectInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if info, ok := sm.largeObjects[base]; ok {
		return info, true
	}
	// base may be a later page of a multi-page object.
	for _, info := range sm.largeObjects {
		if base >= info.headAddr && base < info.headAddr+uintptr(info.numPages)*pageSize {
			return info, true
		}
	}
	return largeObjectInfo{}, false
}

// adoptOrphans moves all of a terminated worker's pages into the global
// orphan list.
func (sm *segmentManager) adoptOrphans(pages []*pageHeader, owner uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, p := range pages {
		p.setOrphan()
		sm.orphans = append(sm.orphans, &orphanPage{page: p, large: p.isLarge(), origOwner: owner})
	}
}

// takeOrphans returns (and clears) the current orphan list, for the major
// GC orphan sweep.
func (sm *segmentManager) takeOrphans() []*orphanPage {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := sm.orphans
	sm.orphans = nil
	return out
}

func (sm *segmentManager) returnOrphanToOS(o *orphanPage) {
	if o.large {
		sm.unregisterLargeObject(o.page.base)
	}
	if err := munmapAnon(o.page.base, int(o.page.mapSize)); err != nil {
		log().Warnw("rudo: munmap of orphan page failed", "error", err, "base", o.page.base)
	}
}
