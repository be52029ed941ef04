package rudo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCrossThreadHandleResolvesFromAnotherGoroutine builds an object on
// one worker, publishes a handle for it, and resolves + drops that handle
// from a different goroutine entirely — the scenario a raw Gc[T] (tied to
// conservative scanning on its origin's stack) cannot support safely on
// its own. The resolving goroutine still presents the origin worker as
// caller: a handle is only ever resolvable on its origin worker, not on
// whichever worker happens to be calling.
func TestCrossThreadHandleResolvesFromAnotherGoroutine(t *testing.T) {
	producer := RegisterWorker()
	defer producer.Unregister()

	g := New[int](producer, 7)
	handle := g.CrossThreadHandle(producer)
	g.Drop(producer) // the handle now holds the only strong reference

	var wg sync.WaitGroup
	wg.Add(1)
	var resolvedValue int
	var resolveErr error

	go func() {
		defer wg.Done()
		resolved, err := handle.Resolve(producer)
		if err != nil {
			resolveErr = err
			return
		}
		resolvedValue = *resolved.Get()
		resolved.Drop(producer)
	}()
	wg.Wait()

	require.NoError(t, resolveErr)
	assert.Equal(t, 7, resolvedValue)

	handle.Drop()
}

// TestCrossThreadHandleResolveWrongWorkerFails asserts that a handle can
// only be resolved by its origin worker: any other registered worker gets
// ErrWrongWorker, and TryResolve reports failure rather than handing out
// a Gc[T] that would be live on the wrong heap.
func TestCrossThreadHandleResolveWrongWorkerFails(t *testing.T) {
	producer := RegisterWorker()
	defer producer.Unregister()
	other := RegisterWorker()
	defer other.Unregister()
	// producer and other share this goroutine, so a Drop-triggered
	// collection on producer could never rendezvous with other.
	SetCollectCondition(producer, func(*CollectInfo) bool { return false })

	g := New[int](producer, 7)
	handle := g.CrossThreadHandle(producer)
	g.Drop(producer)

	_, err := handle.Resolve(other)
	assert.ErrorIs(t, err, ErrWrongWorker)

	_, ok := handle.TryResolve(other)
	assert.False(t, ok)

	resolved, err := handle.Resolve(producer)
	require.NoError(t, err)
	assert.Equal(t, 7, *resolved.Get())
	resolved.Drop(producer)

	handle.Drop()
}

func TestCrossThreadHandleSurvivesOriginCollection(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[testNode](w, testNode{Val: 42})
	handle := g.CrossThreadHandle(w)
	g.Drop(w)

	CollectFull(w) // the cross-thread root table, not the (dropped) stack handle, must keep this alive

	resolved, err := handle.Resolve(w)
	require.NoError(t, err)
	assert.Equal(t, 42, resolved.Get().Val)
	resolved.Drop(w)
	handle.Drop()
}

func TestWeakCrossThreadHandleUpgradeFailsAfterDrop(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 1)
	weakHandle := g.Downgrade().CrossThreadHandle(w)

	g.Drop(w)
	CollectFull(w)

	_, ok := weakHandle.TryUpgrade(w)
	assert.False(t, ok)
	weakHandle.Drop()
}
