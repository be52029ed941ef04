package rudo

import (
	"github.com/google/uuid"
)

// GcHandle and WeakCrossThreadHandle implement a cross-thread handle
// table: a way to hand a reference to an object living in one worker's
// heap to a goroutine that never allocated on that heap, without
// ever exposing a raw Gc[T] (and therefore a raw box address) across
// goroutines in a way that would let two goroutines race on which one
// "discovers" a conservative root for it.
//
// The table lives on the *origin* worker (the one that created the
// handle), keyed by a github.com/google/uuid id rather than a sequence
// counter so ids never collide across independently-created workers.
// Collection treats every strong entry in every worker's crossRoots as a
// root (see collector.go's collectExplicitRoots); crossWeakRoots entries
// are deliberately not roots, matching a weak reference's usual
// non-owning semantics.

// GcHandle is a strong, cross-thread-safe reference to a managed T.
type GcHandle[T any] struct {
	id     string
	origin uint64
}

// CrossThreadHandle publishes g into w's cross-thread root table and
// returns a handle any goroutine can later Resolve, independent of g's
// own lifetime (g may be Dropped immediately after).
func (g Gc[T]) CrossThreadHandle(w *Worker) GcHandle[T] {
	g.header().incStrong()
	id := uuid.NewString()
	w.crossMu.Lock()
	w.crossRoots[id] = g.addr
	w.crossMu.Unlock()
	return GcHandle[T]{id: id, origin: w.ID()}
}

// Resolve looks the handle up in its origin worker's root table and
// returns a fresh strong Gc handle. caller must be the handle's origin
// worker — the one that called CrossThreadHandle — since the produced
// Gc[T] must only ever exist on its origin worker's heap; any other
// caller gets ErrWrongWorker. Also fails with ErrWrongWorker if the
// origin worker has since unregistered (its table, and therefore this
// handle's backing entry, no longer exists), or with ErrDead if the
// handle has already been dropped.
func (h GcHandle[T]) Resolve(caller *Worker) (Gc[T], error) {
	if caller.ID() != h.origin {
		return Gc[T]{}, wrapf(ErrWrongWorker, "handle's origin is worker %d, resolved from worker %d", h.origin, caller.ID())
	}
	origin, ok := lookupWorker(h.origin)
	if !ok {
		return Gc[T]{}, wrapf(ErrWrongWorker, "origin worker %d is no longer registered", h.origin)
	}
	origin.crossMu.Lock()
	addr, ok := origin.crossRoots[h.id]
	origin.crossMu.Unlock()
	if !ok {
		return Gc[T]{}, wrapf(ErrDead, "cross-thread handle %s already dropped", h.id)
	}
	headerAt(addr).incStrong()
	return Gc[T]{addr: addr}, nil
}

// TryResolve is Resolve without the error: ok is false for any failure,
// including a call from a worker other than the handle's origin.
func (h GcHandle[T]) TryResolve(caller *Worker) (Gc[T], bool) {
	g, err := h.Resolve(caller)
	return g, err == nil
}

// Drop removes h's entry from the origin worker's table and releases its
// strong hold. Safe to call from any goroutine, and safe to call more
// than once (a second Drop is a no-op).
func (h GcHandle[T]) Drop() {
	origin, ok := lookupWorker(h.origin)
	if !ok {
		return
	}
	origin.crossMu.Lock()
	addr, ok := origin.crossRoots[h.id]
	delete(origin.crossRoots, h.id)
	origin.crossMu.Unlock()
	if ok {
		headerAt(addr).decStrong()
		noteObjectDropped()
	}
}

// WeakCrossThreadHandle is the non-owning counterpart to GcHandle.
type WeakCrossThreadHandle[T any] struct {
	id     string
	origin uint64
}

// CrossThreadHandle publishes wk into w's cross-thread weak root table.
func (wk Weak[T]) CrossThreadHandle(w *Worker) WeakCrossThreadHandle[T] {
	headerAt(wk.addr).incWeak()
	id := uuid.NewString()
	w.crossMu.Lock()
	w.crossWeakRoots[id] = wk.addr
	w.crossMu.Unlock()
	return WeakCrossThreadHandle[T]{id: id, origin: w.ID()}
}

// Resolve looks up h's backing Weak[T] from the origin worker's table.
// caller must be the handle's origin worker, exactly as for
// GcHandle.Resolve.
func (h WeakCrossThreadHandle[T]) Resolve(caller *Worker) (Weak[T], error) {
	if caller.ID() != h.origin {
		return Weak[T]{}, wrapf(ErrWrongWorker, "handle's origin is worker %d, resolved from worker %d", h.origin, caller.ID())
	}
	origin, ok := lookupWorker(h.origin)
	if !ok {
		return Weak[T]{}, wrapf(ErrWrongWorker, "origin worker %d is no longer registered", h.origin)
	}
	origin.crossMu.Lock()
	addr, ok := origin.crossWeakRoots[h.id]
	origin.crossMu.Unlock()
	if !ok {
		return Weak[T]{}, wrapf(ErrDead, "cross-thread weak handle %s already dropped", h.id)
	}
	return Weak[T]{addr: addr}, nil
}

// TryResolve is Resolve without the error.
func (h WeakCrossThreadHandle[T]) TryResolve(caller *Worker) (Weak[T], bool) {
	wk, err := h.Resolve(caller)
	return wk, err == nil
}

// TryUpgrade resolves h and attempts to upgrade it to a strong Gc handle
// in one call.
func (h WeakCrossThreadHandle[T]) TryUpgrade(caller *Worker) (Gc[T], bool) {
	wk, err := h.Resolve(caller)
	if err != nil {
		return Gc[T]{}, false
	}
	return wk.Upgrade()
}

// Drop removes h's entry from the origin worker's weak table.
func (h WeakCrossThreadHandle[T]) Drop() {
	origin, ok := lookupWorker(h.origin)
	if !ok {
		return
	}
	origin.crossMu.Lock()
	addr, ok := origin.crossWeakRoots[h.id]
	delete(origin.crossWeakRoots, h.id)
	origin.crossMu.Unlock()
	if ok {
		headerAt(addr).decWeak()
	}
}
