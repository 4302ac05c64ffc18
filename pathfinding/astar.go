package pathfinding

import (
	"container/heap"
	"math"
)

// Node is a single grid coordinate inside one search instance.
type Node struct {
	X, Y      int
	Parent    *Node
	CostSoFar float64 // Cost from the start node to this node
	Heuristic float64 // Estimated cost from this node to the goal

	index  int  // Index in the open heap, -1 once popped
	opened bool // Pushed at least once
}

// Priority is the combined A* score used to order the open heap.
func (n *Node) Priority() float64 {
	return n.CostSoFar + n.Heuristic
}

// Cell returns the node's coordinate.
func (n *Node) Cell() Cell {
	return Cell{X: n.X, Y: n.Y}
}

// path walks the parent links back to the start and returns the cells in
// start→goal order.
func (n *Node) path() []Cell {
	var cells []Cell
	for cur := n; cur != nil; cur = cur.Parent {
		cells = append(cells, cur.Cell())
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}

// nodeHeap implements heap.Interface ordered by Priority ascending.
// Ties are broken only by priority, so the order among equal-priority
// nodes depends on the push sequence.
type nodeHeap []*Node

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	return h[i].Priority() < h[j].Priority()
}

func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *nodeHeap) Push(x interface{}) {
	n := len(*h)
	node := x.(*Node)
	node.index = n
	*h = append(*h, node)
}

func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil  // Avoid memory leaks
	node.index = -1 // Mark as removed
	*h = old[0 : n-1]
	return node
}

// openList wraps nodeHeap with typed push/pop/update.
type openList struct {
	h nodeHeap
}

func (o *openList) Len() int { return o.h.Len() }

func (o *openList) push(n *Node) {
	n.opened = true
	heap.Push(&o.h, n)
}

func (o *openList) pop() *Node {
	return heap.Pop(&o.h).(*Node)
}

// update re-heapifies a node whose cost dropped. Nodes already popped
// keep their new cost but are not reinserted.
func (o *openList) update(n *Node) {
	if n.index >= 0 && n.index < len(o.h) && o.h[n.index] == n {
		heap.Fix(&o.h, n.index)
	}
}

const (
	// heuristicDiagonal is the diagonal factor of the octile heuristic.
	// It stays below math.Sqrt2 so the estimate never exceeds the true cost.
	heuristicDiagonal = 1.4
	diagonalStep      = math.Sqrt2
)

// octile is the heuristic used when diagonal moves are enabled; manhattan
// otherwise.
func octile(x1, y1, x2, y2 int) float64 {
	dx := math.Abs(float64(x1 - x2))
	dy := math.Abs(float64(y1 - y2))
	lo, hi := math.Min(dx, dy), math.Max(dx, dy)
	return heuristicDiagonal*lo + (hi - lo)
}

func manhattan(x1, y1, x2, y2 int) float64 {
	return math.Abs(float64(x1-x2)) + math.Abs(float64(y1-y2))
}
