package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/routesim/state"
)

type TraceEvent struct {
	Time     time.Time
	Protocol string
	Router   state.NodeId
	Event    RouterEvent
	Desc     string
	Args     []any
}

func (e TraceEvent) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%s [%s %s] %s %s", e.Time.Format("15:04:05.000"), e.Protocol, e.Router, e.Event, e.Desc))
	for i := 0; i+1 < len(e.Args); i += 2 {
		sb.WriteString(fmt.Sprintf(" %v=%v", e.Args[i], e.Args[i+1]))
	}
	return sb.String()
}

// Trace fans router events out to any number of subscribers.
// Subscribers must keep reading, a stalled subscriber stalls the routers.
type Trace struct {
	broadcast.Broadcaster
}

func NewTrace() *Trace {
	return &Trace{broadcast.NewBroadcaster(1024)}
}

func (t *Trace) Publish(ev TraceEvent) {
	t.Submit(ev)
}

// Subscribe registers a new subscriber. Call the returned function before Close to unsubscribe.
func (t *Trace) Subscribe() (<-chan any, func()) {
	ch := make(chan any, 1024)
	t.Register(ch)
	return ch, func() {
		done := make(chan struct{})
		go func() {
			t.Unregister(ch)
			close(done)
		}()
		// keep draining so the broadcaster is never stuck on a full ch
		for {
			select {
			case <-done:
				return
			case <-ch:
			}
		}
	}
}
