package rudo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellSetMarksOwnerPageDirtyOnlyWhenOld(t *testing.T) {
	w := RegisterWorker()
	defer w.Unregister()

	owner := New[testNode](w, testNode{Val: 1})
	RegisterTestRoot(owner.Addr())
	defer ClearTestRoots()
	owner.Get().Next = NewCell(owner.Addr(), Gc[testNode]{})

	p, ok := lookupPage(pageOf(owner.Addr()))
	require.True(t, ok)
	idx := p.slotIndexForOffset(owner.Addr() - p.base - uintptr(p.headerSize))

	// Still young: Set must not dirty (only old-generation slots are
	// tracked in the remembered set).
	child := New[testNode](w, testNode{Val: 2})
	owner.Get().Next.Set(child.Clone())
	assert.False(t, p.isDirty(idx))
	child.Drop(w)

	Collect(w) // promote owner to old
	require.Equal(t, genOld, p.generationTag())

	child2 := New[testNode](w, testNode{Val: 3})
	owner.Get().Next.Set(child2.Clone())
	assert.True(t, p.isDirty(idx), "mutating an old-generation cell must dirty its page")
	child2.Drop(w)

	owner.Drop(w)
}

func TestCellGetSet(t *testing.T) {
	c := NewCell[int](0, 10)
	assert.Equal(t, 10, c.Get())
	c.Set(20)
	assert.Equal(t, 20, c.Get())
}
