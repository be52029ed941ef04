package rudo

import (
	"sync"

	"go.uber.org/atomic"
)

// workerLifecycleState tracks a worker's collection-handshake state.
type workerLifecycleState int32

const (
	stateExecuting workerLifecycleState = iota
	stateAtSafepoint
	stateInactive
)

// Worker is rudo's unit of mutator parallelism, a per-goroutine control
// block. Every goroutine that allocates or holds Gc handles across a
// safepoint must register one via RegisterWorker and hold onto it for the
// goroutine's lifetime.
type Worker struct {
	id    uint64
	state atomic.Int32

	gcRequested atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond

	heap *LocalHeap

	stackRoots []uintptr
	capturer   *shadowStackCapturer

	scopes     []*HandleScope
	scopeLevel int

	crossMu        sync.Mutex
	crossRoots     map[string]uintptr
	crossWeakRoots map[string]uintptr

	inCollect bool

	collectCond func(*CollectInfo) bool
}

// threadRegistry is the process-wide registry of live workers.
type threadRegistry struct {
	mu   sync.Mutex
	cond *sync.Cond

	workers      map[uint64]*Worker
	active       int
	gcInProgress bool
	nextID       atomic.Uint64
}

var registry = newRegistry()

func newRegistry() *threadRegistry {
	r := &threadRegistry{workers: make(map[uint64]*Worker)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// RegisterWorker registers the calling goroutine as a new rudo worker,
// allocating its LocalHeap and TCB. Call its Unregister method (typically
// via defer) when the goroutine is done allocating.
func RegisterWorker() *Worker {
	id := registry.nextID.Inc()
	w := &Worker{
		id:             id,
		heap:           newLocalHeap(id),
		capturer:       &shadowStackCapturer{},
		crossRoots:     make(map[string]uintptr),
		crossWeakRoots: make(map[string]uintptr),
		collectCond:    defaultCollectCondition,
	}
	w.cond = sync.NewCond(&w.mu)
	w.state.Store(int32(stateExecuting))

	registry.mu.Lock()
	// A newly-spawned worker does not get gcRequested set even if a
	// collection is mid-flight; it joins the registry and runs freely,
	// since the collector has already snapshot the set of roots it will
	// scan.
	registry.workers[id] = w
	registry.active++
	registry.mu.Unlock()

	log().Debugw("rudo: worker registered", "worker", id)
	return w
}

// Unregister tears down w: its pages become orphan pages, and it leaves
// the registry.
func (w *Worker) Unregister() {
	registry.mu.Lock()
	delete(registry.workers, w.id)
	registry.active--
	registry.cond.Broadcast()
	registry.mu.Unlock()

	segments.adoptOrphans(w.heap.pages, w.id)
	log().Debugw("rudo: worker unregistered", "worker", w.id)
}

// ID returns the worker's unique id, used as the origin-worker tag on
// cross-thread handles.
func (w *Worker) ID() uint64 { return w.id }

// checkSafepoint is the cheap poll hook called from alloc, Drop, and the
// public Safepoint().
func (w *Worker) checkSafepoint() {
	if !w.gcRequested.Load() {
		return
	}
	w.enterRendezvous()
}

// Safepoint lets user code in a long non-allocating loop cooperate with a
// pending collection.
func (w *Worker) Safepoint() {
	w.checkSafepoint()
}

// enterRendezvous parks this worker at a safepoint, capturing its
// conservative roots before releasing the active count, since the
// collector's wait condition depends on that ordering.
func (w *Worker) enterRendezvous() {
	if !w.gcRequested.Load() {
		return // race guard: flag cleared between the poll and here
	}
	w.state.Store(int32(stateAtSafepoint))

	// Spill + scan: stackRoots captures this worker's conservative root
	// snapshot; open handle scopes are read by the collector directly
	// from w.scopes.
	w.stackRoots = w.capturer.Capture()

	registry.mu.Lock()
	registry.active--
	registry.cond.Broadcast() // release: establishes happens-before with the collector's active==1 load
	registry.mu.Unlock()

	w.mu.Lock()
	for w.gcRequested.Load() {
		w.cond.Wait()
	}
	w.mu.Unlock()

	w.state.Store(int32(stateExecuting))
}

// requestGCHandshake asks every other registered worker to park at a
// safepoint. Only one worker becomes the collector per collection: if
// another is already mid-collection, this call declines and the caller
// instead cooperates as an ordinary rendezvous participant.
func (w *Worker) requestGCHandshake() (isCollector bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.gcInProgress {
		return false
	}
	registry.gcInProgress = true
	for id, other := range registry.workers {
		if id != w.id {
			other.gcRequested.Store(true)
		}
	}
	return true
}

// waitForRendezvous blocks the collector until every other registered
// worker has parked at a safepoint (active drops to 1: only the collector
// itself remains).
func (w *Worker) waitForRendezvous() {
	registry.mu.Lock()
	for registry.active > 1 {
		registry.cond.Wait()
	}
	registry.mu.Unlock()
}

// resumeAllThreads clears flags, wakes parked workers, restores the
// active count for the workers that parked, and clears the global
// in-progress sentinel.
func (w *Worker) resumeAllThreads() {
	registry.mu.Lock()
	for id, other := range registry.workers {
		if id == w.id {
			continue
		}
		parked := workerLifecycleState(other.state.Load()) == stateAtSafepoint
		other.mu.Lock()
		other.gcRequested.Store(false)
		other.cond.Signal()
		other.mu.Unlock()
		if parked {
			registry.active++
		}
	}
	registry.gcInProgress = false
	registry.cond.Broadcast()
	registry.mu.Unlock()
}

// lookupWorker finds a still-registered worker by id, used by
// cross-thread handle resolution to reach the origin worker's root
// table from any goroutine.
func lookupWorker(id uint64) (*Worker, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	w, ok := registry.workers[id]
	return w, ok
}

// allWorkersSnapshot returns the current registry contents as a slice,
// used by the collector to iterate every worker's roots and heap without
// holding the registry lock across the (potentially long) scan.
func allWorkersSnapshot() []*Worker {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	out := make([]*Worker, 0, len(registry.workers))
	for _, w := range registry.workers {
		out = append(out, w)
	}
	return out
}
