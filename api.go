package rudo

import "sync"

// Collect requests a minor collection from w, yielding at a safepoint if
// another worker is already collecting.
func Collect(w *Worker) { w.Collect(false) }

// CollectFull requests a major (whole-heap) collection.
func CollectFull(w *Worker) { w.Collect(true) }

// Safepoint lets long-running, non-allocating code cooperate with a
// pending collection requested by another worker.
func Safepoint(w *Worker) { w.Safepoint() }

// testRoots is a test-only root pinning escape hatch: a way for test code
// to keep an object alive across a Collect call without threading it
// through a HandleScope, useful when asserting on a collector's behavior
// rather than on the object graph under test.
var (
	testRootsMu sync.Mutex
	testRoots   []uintptr
)

// RegisterTestRoot pins addr (a box header address, e.g. from a Gc's
// underlying handle) as a root until the next ClearTestRoots.
func RegisterTestRoot(addr uintptr) {
	testRootsMu.Lock()
	testRoots = append(testRoots, addr)
	testRootsMu.Unlock()
}

// ClearTestRoots releases every pinned test root.
func ClearTestRoots() {
	testRootsMu.Lock()
	testRoots = nil
	testRootsMu.Unlock()
}

func testRootsSnapshot() []uintptr {
	testRootsMu.Lock()
	defer testRootsMu.Unlock()
	out := make([]uintptr, len(testRoots))
	copy(out, testRoots)
	return out
}
