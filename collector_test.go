package rudo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleCollectionReclaimsBothNodes(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	a := New[testNode](w, testNode{Val: 1})
	b := New[testNode](w, testNode{Val: 2})
	a.Get().Next = NewCell(a.Addr(), Gc[testNode]{})
	b.Get().Next = NewCell(b.Addr(), Gc[testNode]{})

	a.Get().Next.Set(b.Clone())
	b.Get().Next.Set(a.Clone())

	beforeAlive := globalObjectsAlive.Load()

	a.Drop(w)
	b.Drop(w)

	// Plain refcounting could never reach zero here: each node still
	// holds one strong reference from the other.
	assert.EqualValues(t, 1, a.header().strong.Load())
	assert.EqualValues(t, 1, b.header().strong.Load())

	CollectFull(w)

	afterAlive := globalObjectsAlive.Load()
	assert.Less(t, afterAlive, beforeAlive, "major collection should reclaim the cycle")
	assert.True(t, a.header().isValueDead())
	assert.True(t, b.header().isValueDead())
}

func TestMinorCollectionPromotesSurvivors(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 123)
	RegisterTestRoot(g.Addr())
	defer ClearTestRoots()

	p, ok := lookupPage(pageOf(g.Addr()))
	require.True(t, ok)
	assert.Equal(t, genYoung, p.generationTag())

	Collect(w) // minor

	assert.Equal(t, genOld, p.generationTag(), "a page that survives a minor GC is promoted")
	assert.Equal(t, 123, *g.Get())

	g.Drop(w)
}

func TestDirtyCardKeepsYoungObjectAliveAcrossMinorGC(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	old := New[testNode](w, testNode{Val: 1})
	RegisterTestRoot(old.Addr())
	defer ClearTestRoots()
	old.Get().Next = NewCell(old.Addr(), Gc[testNode]{})

	Collect(w) // promote `old` to the old generation
	p, _ := lookupPage(pageOf(old.Addr()))
	require.Equal(t, genOld, p.generationTag())

	young := New[testNode](w, testNode{Val: 2})
	old.Get().Next.Set(young.Clone()) // write barrier: dirties old's page
	young.Drop(w)                     // only remaining strong ref is via `old`

	Collect(w) // minor: must discover `young` through the dirty card, not the (absent) stack root

	got := old.Get().Next.Get().Clone()
	assert.False(t, got.IsNil())
	assert.Equal(t, 2, got.Get().Val)
	got.Drop(w)

	old.Drop(w)
}

// TestMinorCollectionLeavesZeroSurvivorPageYoung allocates then drops an
// object with no other root, so its page has zero survivors after the next
// minor sweep. That page must stay in the young generation (not be flipped
// to old with nothing alive in it) so the slot is fully available to a
// later allocation — a mistakenly-promoted empty page would instead keep
// handing out "young" objects from inside a page every later minor GC
// treats as old and never sweeps again.
func TestMinorCollectionLeavesZeroSurvivorPageYoung(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 1)
	p, ok := lookupPage(pageOf(g.Addr()))
	require.True(t, ok)
	g.Drop(w) // no remaining root anywhere

	Collect(w) // minor: sweeps g's page down to zero survivors

	assert.Equal(t, genYoung, p.generationTag(), "a page with no survivors must not be promoted")

	h2 := New[int](w, 2)
	p2, ok := lookupPage(pageOf(h2.Addr()))
	require.True(t, ok)
	assert.Equal(t, genYoung, p2.generationTag(), "an object allocated after the sweep is genuinely young")

	h2.Drop(w) // before the sweep: a swept slot's strong count is reused as free-list linkage
	Collect(w) // h2 has no root either: this minor GC must still see and sweep it
	assert.Equal(t, genYoung, p2.generationTag())
}
