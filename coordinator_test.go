package rudo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrentHandshake runs several workers allocating and dropping
// concurrently while one of them repeatedly triggers collections; the
// handshake must never deadlock or let a worker observe a torn mark/sweep
// pass.
func TestConcurrentHandshake(t *testing.T) {
	const numWorkers = 4
	const perWorker = 500

	var g errgroup.Group
	var mu sync.Mutex
	var totalAllocated int

	for i := 0; i < numWorkers; i++ {
		i := i
		g.Go(func() error {
			w := RegisterWorker()
			defer w.Unregister()

			for j := 0; j < perWorker; j++ {
				h := New[int](w, j)
				w.PushRoot(h.Addr()) // h is held across the collection/safepoint below
				if i == 0 && j%50 == 0 {
					CollectFull(w)
				} else {
					w.Safepoint()
				}
				w.PopRoot()
				h.Drop(w)
			}

			mu.Lock()
			totalAllocated += perWorker
			mu.Unlock()
			return nil
		})
	}

	assert.NoError(t, g.Wait())
	assert.Equal(t, numWorkers*perWorker, totalAllocated)
}

// spawnDuringSweep's destructor runs in sweep phase 1, while its
// collection is still in progress, and registers a new worker there.
type spawnDuringSweep struct{ Val int }

var spawnedDuringSweep *Worker

func (s *spawnDuringSweep) RudoDrop() {
	spawnedDuringSweep = RegisterWorker()
}

func TestNewlySpawnedWorkerDuringCollectionJoinsFreely(t *testing.T) {
	w1 := RegisterWorker()
	defer w1.Unregister()
	// Only the explicit CollectFull below collects: a collection started
	// while w2 is registered on this same goroutine could never
	// rendezvous with it.
	SetCollectCondition(w1, func(*CollectInfo) bool { return false })

	// g's destructor registers a second worker in the middle of the
	// collection below. That worker is not asked to park, the handshake
	// does not deadlock, and the new worker can allocate afterward.
	spawnedDuringSweep = nil
	g := New[spawnDuringSweep](w1, spawnDuringSweep{Val: 1})
	g.Drop(w1)
	CollectFull(w1)

	w2 := spawnedDuringSweep
	require.NotNil(t, w2)
	assert.False(t, w2.gcRequested.Load(), "a worker registered mid-collection is not asked to park")
	h := New[int](w2, 1)
	assert.Equal(t, 1, *h.Get())
	w2.Unregister()
}
