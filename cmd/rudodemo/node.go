package main

import "github.com/rudogc/rudo-go"

// Node is the demo payload type: a managed linked-list/graph node whose
// only pointer-bearing field is a Cell so it can be mutated after the
// surrounding Gc[Node] has already been allocated (the usual shape for
// building cyclic structures, see cmd/rudodemo's "cycle" command).
type Node struct {
	Value int
	Next  *rudo.Cell[rudo.Gc[Node]]
}

// RudoTrace visits Next's target, if any has been set. Cell's own
// zero value holds a zero Gc[Node] (IsNil), so an un-set Next traces to
// nothing.
func (n *Node) RudoTrace(visit rudo.Visitor) {
	if n.Next == nil {
		return
	}
	g := n.Next.Get()
	if !g.IsNil() {
		visit(g.Addr())
	}
}
