package core

import (
	"testing"

	"github.com/encodeous/routesim/state"
	"github.com/stretchr/testify/assert"
)

func TestSPFQueue(t *testing.T) {
	q := newSPFQueue[uint64]()
	q.Offer("c", 3)
	q.Offer("b", 9)
	q.Offer("a", 1)
	q.Offer("d", 3)
	// lowering a queued distance reorders it
	q.Offer("b", 2)
	assert.Equal(t, 4, q.Len())
	assert.True(t, q.Queued("b"))

	order := make([]state.NodeId, 0)
	dists := make([]uint64, 0)
	for q.Len() > 0 {
		id, d := q.Settle()
		order = append(order, id)
		dists = append(dists, d)
	}
	// c and d tie, the lower id settles first
	assert.Equal(t, []state.NodeId{"a", "b", "c", "d"}, order)
	assert.Equal(t, []uint64{1, 2, 3, 3}, dists)
	assert.False(t, q.Queued("b"))
}
