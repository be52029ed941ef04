package rudo

import (
	"reflect"
	"sync"
	"unsafe"

	"go.uber.org/atomic"
)

// typeDescriptor is the type-erased drop-function / trace-function pair
// stored in every box header, plus the layout info needed to place a
// payload after a boxHeader. One descriptor exists per distinct T ever
// allocated through New/NewCyclicWeak, created lazily and kept forever in
// descByType.
//
// Descriptors are deliberately never freed: box headers living in the
// mmap'd arena (which the host Go GC does not scan) store only a raw
// uintptr to their descriptor. Keeping descKeepAlive append-only and
// reachable from a package-level var is what keeps that raw pointer valid
// for the life of the process, without requiring the arena itself to be a
// GC root.
type typeDescriptor struct {
	drop  dropFn
	trace traceFn
	size  uintptr
	align uintptr
	name  string
}

var (
	descMu     sync.Mutex
	descByType = map[reflect.Type]*typeDescriptor{}
	descKeepAlive []*typeDescriptor
)

func descriptorFor[T any]() *typeDescriptor {
	var zero T
	rt := reflect.TypeOf(&zero).Elem()

	descMu.Lock()
	defer descMu.Unlock()
	if d, ok := descByType[rt]; ok {
		return d
	}
	d := &typeDescriptor{
		drop:  makeDropFn[T](),
		trace: makeTraceFn[T](),
		size:  unsafe.Sizeof(zero),
		align: unsafe.Alignof(zero),
		name:  rt.String(),
	}
	descByType[rt] = d
	descKeepAlive = append(descKeepAlive, d)
	return d
}

// box header flag bits, packed into the low bits of weakFlags alongside
// the weak count: value-dead and under-construction sentinels.
const (
	flagValueDead         uint64 = 1 << 0
	flagUnderConstruction uint64 = 1 << 1
	weakCountShift               = 2
)

func packWeak(count uint64, flags uint64) uint64 { return count<<weakCountShift | flags }
func weakCountOf(v uint64) uint64                { return v >> weakCountShift }
func weakFlagsOf(v uint64) uint64                { return v & (1<<weakCountShift - 1) }

// boxHeader precedes every managed object's payload (padded up to the
// descriptor's alignment). Never moved once allocated.
type boxHeader struct {
	strong    atomic.Int64
	weakFlags atomic.Uint64
	desc      uintptr // -> *typeDescriptor, see descKeepAlive above
}

var boxHeaderSize = unsafe.Sizeof(boxHeader{})

func headerAt(addr uintptr) *boxHeader {
	return (*boxHeader)(unsafe.Pointer(addr))
}

func (h *boxHeader) descriptor() *typeDescriptor {
	return (*typeDescriptor)(unsafe.Pointer(h.desc))
}

func (h *boxHeader) payloadOffset() uintptr {
	return alignUp(boxHeaderSize, h.descriptor().align)
}

func (h *boxHeader) payloadPtr(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr + h.payloadOffset())
}

func (h *boxHeader) isValueDead() bool         { return h.weakFlags.Load()&flagValueDead != 0 }
func (h *boxHeader) isUnderConstruction() bool { return h.weakFlags.Load()&flagUnderConstruction != 0 }

func (h *boxHeader) setFlag(bit uint64) {
	for {
		old := h.weakFlags.Load()
		if old&bit != 0 {
			return
		}
		if h.weakFlags.CAS(old, old|bit) {
			return
		}
	}
}

func (h *boxHeader) clearFlag(bit uint64) {
	for {
		old := h.weakFlags.Load()
		if old&bit == 0 {
			return
		}
		if h.weakFlags.CAS(old, old&^bit) {
			return
		}
	}
}

func (h *boxHeader) incWeak() {
	for {
		old := h.weakFlags.Load()
		nv := packWeak(weakCountOf(old)+1, weakFlagsOf(old))
		if h.weakFlags.CAS(old, nv) {
			return
		}
	}
}

// decWeak decrements the weak count, preserving flag bits, and reports the
// count remaining afterward. A plain load+CAS loop rather than load+store:
// a concurrent decrement lost to a stale store would leak the header
// forever.
func (h *boxHeader) decWeak() uint64 {
	for {
		old := h.weakFlags.Load()
		wc := weakCountOf(old)
		if wc == 0 {
			panic("rudo: weak count underflow")
		}
		nv := packWeak(wc-1, weakFlagsOf(old))
		if h.weakFlags.CAS(old, nv) {
			return wc - 1
		}
	}
}

func (h *boxHeader) weakCount() uint64 { return weakCountOf(h.weakFlags.Load()) }

// incStrong atomically bumps the strong count, used by Clone and by
// Weak.Upgrade. It is a plain Inc rather than a CAS loop because nothing
// about the strong count shares bits with flags.
func (h *boxHeader) incStrong() { h.strong.Inc() }

// decStrong decrements the strong count and asserts it never underflows.
func (h *boxHeader) decStrong() int64 {
	v := h.strong.Dec()
	if v < 0 {
		panic("rudo: strong count underflow")
	}
	return v
}

// Gc is a shared-ownership handle to a managed T. It is a thin wrapper
// around a raw arena address: deliberately a uintptr, not an
// unsafe.Pointer, so that a Gc field embedded in another Traceable's
// payload is invisible to the host Go GC when that payload lives in the
// rudo arena. Gc is itself Traceable-aware via the Visitor callback rather
// than via this type implementing Traceable directly — visiting happens
// through the *container's* RudoTrace.
type Gc[T any] struct {
	addr uintptr
}

// IsNil reports whether g is the zero Gc value (no object).
func (g Gc[T]) IsNil() bool { return g.addr == 0 }

// Addr returns g's underlying box-header address, for use with
// PushRoot/PopRoot, HandleScope.Handle, or RegisterTestRoot when a
// handle must be kept reachable outside of its own lexical scope.
func (g Gc[T]) Addr() uintptr { return g.addr }

func (g Gc[T]) header() *boxHeader { return headerAt(g.addr) }

// Get returns a pointer to the payload. The pointer is valid until the
// next collection that reclaims this object; do not retain it past a
// safepoint unless the Gc handle is also kept reachable some other way
// (e.g. pushed with PushRoot, or stored in a HandleScope).
func (g Gc[T]) Get() *T {
	h := g.header()
	return (*T)(h.payloadPtr(g.addr))
}

// New allocates a T inside w's heap and returns a strong handle to it.
func New[T any](w *Worker, value T) Gc[T] {
	desc := descriptorFor[T]()
	addr := w.allocRaw(desc)
	h := headerAt(addr)
	h.strong.Store(1)
	h.weakFlags.Store(0)
	h.desc = uintptr(unsafe.Pointer(desc))
	*(*T)(h.payloadPtr(addr)) = value
	noteObjectAllocated()
	return Gc[T]{addr: addr}
}

// NewCyclicWeak allocates a box under construction, hands the caller a
// Weak pointing at it, lets the caller build the value (typically
// embedding that Weak for later upgrade), then finishes construction.
func NewCyclicWeak[T any](w *Worker, build func(Weak[T]) T) (result Gc[T]) {
	var zero T
	if unsafe.Sizeof(zero) == 0 {
		panic("rudo: NewCyclicWeak requires a non-zero-sized type")
	}
	desc := descriptorFor[T]()
	addr := w.allocRaw(desc)
	h := headerAt(addr)
	h.strong.Store(1)
	h.weakFlags.Store(packWeak(1, flagUnderConstruction))
	h.desc = uintptr(unsafe.Pointer(desc))

	wk := Weak[T]{addr: addr}

	// Drop-guard: if build panics, the partially-initialized box must be
	// deallocated without running T's never-initialized destructor.
	ok := false
	defer func() {
		if !ok {
			w.abandonUnderConstruction(addr)
		}
	}()

	value := build(wk)
	*(*T)(h.payloadPtr(addr)) = value
	h.clearFlag(flagUnderConstruction)
	ok = true
	noteObjectAllocated()
	return Gc[T]{addr: addr}
}

// Clone increments the strong count. No other side effects.
func (g Gc[T]) Clone() Gc[T] {
	g.header().incStrong()
	return Gc[T]{addr: g.addr}
}

// Drop decrements the strong count and polls for a collection via w's
// safepoint hook.
func (g Gc[T]) Drop(w *Worker) {
	g.header().decStrong()
	noteObjectDropped()
	w.maybeCollect()
}

// Downgrade increments the weak count and returns a Weak handle.
func (g Gc[T]) Downgrade() Weak[T] {
	g.header().incWeak()
	return Weak[T]{addr: g.addr}
}

// Weak is a non-owning reference to a managed T.
type Weak[T any] struct {
	addr uintptr
}

func (wk Weak[T]) IsNil() bool { return wk.addr == 0 }

// Addr returns wk's underlying box-header address.
func (wk Weak[T]) Addr() uintptr { return wk.addr }

// Upgrade attempts to produce a new strong Gc handle. Fails (ok=false) if
// the weak pointer is nil, the target is still under construction, or the
// value has already been dropped.
func (wk Weak[T]) Upgrade() (g Gc[T], ok bool) {
	if wk.addr == 0 {
		return Gc[T]{}, false
	}
	h := headerAt(wk.addr)
	if h.isUnderConstruction() {
		return Gc[T]{}, false
	}
	if h.isValueDead() {
		return Gc[T]{}, false
	}
	h.incStrong()
	return Gc[T]{addr: wk.addr}, true
}

// Drop decrements the weak count. Returning the header to the free list
// (if the strong side is already gone) happens in sweep phase 2 once the
// weak count reaches zero, not here.
func (wk Weak[T]) Drop() {
	if wk.addr == 0 {
		return
	}
	headerAt(wk.addr).decWeak()
}

func alignUp(n, align uintptr) uintptr {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
