package core

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/encodeous/routesim/state"
)

// inflight counts messages that have been sent but not yet processed.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{} // closed while n == 0
}

func newInflight() *inflight {
	idle := make(chan struct{})
	close(idle)
	return &inflight{idle: idle}
}

func (f *inflight) add(delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 && delta > 0 {
		f.idle = make(chan struct{})
	}
	f.n += delta
	if f.n < 0 {
		panic("inflight counter went negative")
	}
	if f.n == 0 && delta < 0 {
		close(f.idle)
	}
}

func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Receiver handles a message on the receiving router. It must call done once
// the message has been processed.
type Receiver[M any] func(from state.NodeId, msg M, done func())

// Network is an in-memory set of point to point links between routers. A send
// is handed to the receiver immediately, or after a random delay of up to
// maxDelay, so messages in transit may overtake each other.
type Network[M any] struct {
	mu        sync.RWMutex
	receivers map[state.NodeId]Receiver[M]
	inflight  *inflight
	maxDelay  time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewNetwork[M any](maxDelay time.Duration, seed uint64) *Network[M] {
	return &Network[M]{
		receivers: make(map[state.NodeId]Receiver[M]),
		inflight:  newInflight(),
		maxDelay:  maxDelay,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (n *Network[M]) Attach(id state.NodeId, recv Receiver[M]) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receivers[id] = recv
}

func (n *Network[M]) delay() time.Duration {
	if n.maxDelay <= 0 {
		return 0
	}
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return time.Duration(n.rng.Int64N(int64(n.maxDelay) + 1))
}

// Send delivers msg from one router to another. It returns false if the
// destination is not attached.
func (n *Network[M]) Send(from, to state.NodeId, msg M) bool {
	n.mu.RLock()
	recv, ok := n.receivers[to]
	n.mu.RUnlock()
	if !ok {
		return false
	}
	n.inflight.add(1)
	var once sync.Once
	done := func() {
		once.Do(func() {
			n.inflight.add(-1)
		})
	}
	if d := n.delay(); d > 0 {
		time.AfterFunc(d, func() {
			recv(from, msg, done)
		})
	} else {
		recv(from, msg, done)
	}
	return true
}

// Wait blocks until every message sent so far, and every message sent while
// processing those, has been processed.
func (n *Network[M]) Wait(ctx context.Context) error {
	return n.inflight.wait(ctx)
}
