package rudo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGetDrop(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 42)
	require.False(t, g.IsNil())
	assert.Equal(t, 42, *g.Get())

	g.Drop(w)
}

func TestCloneIncrementsStrong(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 7)
	h := g.header()
	assert.EqualValues(t, 1, h.strong.Load())

	clone := g.Clone()
	assert.EqualValues(t, 2, h.strong.Load())

	clone.Drop(w)
	assert.EqualValues(t, 1, h.strong.Load())
	g.Drop(w)
}

func TestDowngradeUpgrade(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 99)
	weak := g.Downgrade()

	upgraded, ok := weak.Upgrade()
	require.True(t, ok)
	assert.Equal(t, 99, *upgraded.Get())

	upgraded.Drop(w)
	g.Drop(w)
	weak.Drop()
}

func TestWeakUpgradeFailsAfterCollection(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 5)
	weak := g.Downgrade()

	g.Drop(w)
	CollectFull(w)

	_, ok := weak.Upgrade()
	assert.False(t, ok, "weak upgrade should fail once the strong side is collected")
	weak.Drop()
}

func TestStrongCountUnderflowPanics(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := New[int](w, 1)
	g.header().decStrong()
	assert.Panics(t, func() {
		g.header().decStrong()
	})
}

func TestNewCyclicWeakSelfReference(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	g := NewCyclicWeak[testNode](w, func(self Weak[testNode]) testNode {
		return testNode{Val: 1, Self: self}
	})
	require.False(t, g.IsNil())

	self, ok := g.Get().Self.Upgrade()
	require.True(t, ok)
	assert.Equal(t, 1, self.Get().Val)
	self.Drop(w)

	g.Drop(w)
}

// testNode is the package-internal Traceable payload used across
// collector/cell/crosshandle tests: a single mutable outgoing edge plus
// (for the cyclic-construction test) a weak self reference.
type testNode struct {
	Val  int
	Next *Cell[Gc[testNode]]
	Self Weak[testNode]
}

func (n *testNode) RudoTrace(visit Visitor) {
	if n.Next != nil {
		if g := n.Next.Get(); !g.IsNil() {
			visit(g.Addr())
		}
	}
}
