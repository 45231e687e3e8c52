package router

import "github.com/transitrouter/internal/graph"

// item is one frontier entry: the node, the arrival time that put it on
// the queue, the transfer count so far, and the trip the traveller is
// currently riding ("" while walking).
type item struct {
	arrivalSec int
	transfers  int
	node       graph.NodeID
	tripID     string
}

// queue is a min-heap ordered lexicographically on (arrival, transfers),
// which is what makes the tie-break deterministic: of two paths arriving
// at the same second, the one with fewer transfers is settled first.
type queue []item

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].arrivalSec != q[j].arrivalSec {
		return q[i].arrivalSec < q[j].arrivalSec
	}
	return q[i].transfers < q[j].transfers
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x interface{}) {
	*q = append(*q, x.(item))
}

func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
