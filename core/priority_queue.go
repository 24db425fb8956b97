package core

import (
	"container/heap"

	"github.com/encodeous/routesim/state"
	"golang.org/x/exp/constraints"
)

type tentative[D constraints.Ordered] struct {
	id   state.NodeId
	dist D
	pos  int
}

// tentativeHeap orders routers by distance, then id, so equal distances
// always settle in the same order.
type tentativeHeap[D constraints.Ordered] []*tentative[D]

func (h tentativeHeap[D]) Len() int { return len(h) }

func (h tentativeHeap[D]) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].id < h[j].id
}

func (h tentativeHeap[D]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *tentativeHeap[D]) Push(x any) {
	t := x.(*tentative[D])
	t.pos = len(*h)
	*h = append(*h, t)
}

func (h *tentativeHeap[D]) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// spfQueue is the tentative set of a shortest path first run: every router
// that has been reached but not settled, with its best known distance.
type spfQueue[D constraints.Ordered] struct {
	heap   tentativeHeap[D]
	queued map[state.NodeId]*tentative[D]
}

func newSPFQueue[D constraints.Ordered]() *spfQueue[D] {
	return &spfQueue[D]{queued: make(map[state.NodeId]*tentative[D])}
}

func (q *spfQueue[D]) Len() int {
	return len(q.heap)
}

// Offer queues id at dist. If id is already queued its distance is replaced.
func (q *spfQueue[D]) Offer(id state.NodeId, dist D) {
	if t, ok := q.queued[id]; ok {
		t.dist = dist
		heap.Fix(&q.heap, t.pos)
		return
	}
	t := &tentative[D]{id: id, dist: dist}
	q.queued[id] = t
	heap.Push(&q.heap, t)
}

// Settle removes and returns the nearest router.
func (q *spfQueue[D]) Settle() (state.NodeId, D) {
	t := heap.Pop(&q.heap).(*tentative[D])
	delete(q.queued, t.id)
	return t.id, t.dist
}

func (q *spfQueue[D]) Queued(id state.NodeId) bool {
	_, ok := q.queued[id]
	return ok
}
