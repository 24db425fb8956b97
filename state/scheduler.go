package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/encodeous/routesim/perf"
)

// Env is the mailbox of an actor that owns a value of type S. Every function
// dispatched to it runs on the goroutine calling Run, one at a time, in the
// order it was dispatched. The methods of Env are safe to use from anywhere.
type Env[S any] struct {
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
	inbox   *Queue[func(S) error]
}

func NewEnv[S any](ctx context.Context, log *slog.Logger) *Env[S] {
	ctx, cancel := context.WithCancelCause(ctx)
	return &Env[S]{
		Context: ctx,
		Cancel:  cancel,
		Log:     log,
		inbox:   NewQueue[func(S) error](),
	}
}

// Backlog is the number of dispatched functions waiting to run.
func (e *Env[S]) Backlog() int {
	return e.inbox.Len()
}

// Dispatch Dispatches the function to run on the actor without waiting for it to complete
func (e *Env[S]) Dispatch(fun func(S) error) {
	if fun == nil {
		return
	}
	e.inbox.Put(fun)
}

// DispatchWait Dispatches the function to run on the actor and waits for it to complete.
// The error of fun is handed back to the caller and does not stop the actor.
func DispatchWait[S, T any](e *Env[S], fun func(S) (T, error)) (T, error) {
	ret := make(chan Pair[T, error], 1)
	e.Dispatch(func(s S) error {
		res, err := fun(s)
		ret <- Pair[T, error]{res, err}
		return nil
	})
	select {
	case res := <-ret:
		return res.V1, res.V2
	case <-e.Context.Done():
		var zero T
		return zero, context.Cause(e.Context)
	}
}

func (e *Env[S]) ScheduleTask(fun func(S) error, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if e.Context.Err() == nil {
			e.Dispatch(fun)
		}
	})
}

func (e *Env[S]) repeatedTask(fun func(S) error, delay time.Duration) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-e.Context.Done():
			return
		case <-ticker.C:
			e.Dispatch(fun)
		}
	}
}

func (e *Env[S]) RepeatTask(fun func(S) error, delay time.Duration) {
	go e.repeatedTask(fun, delay)
}

// Run processes dispatched functions until the context is cancelled. An error
// returned by a dispatched function cancels the actor with that error as cause.
// Run returns nil on a plain cancellation.
func (e *Env[S]) Run(s S) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			e.Cancel(err)
		}
	}()
	e.Log.Debug("started main loop")
	for {
		fun, ok := e.inbox.Get(e.Context)
		if !ok {
			break
		}
		perf.MailboxBacklog.Add(float64(e.inbox.Len()))
		start := time.Now()
		if err := fun(s); err != nil {
			e.Log.Error("error occurred during dispatch", "error", err)
			e.Cancel(err)
			return err
		}
		elapsed := time.Since(start)
		perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
		if elapsed > SlowDispatchThreshold {
			e.Log.Warn("dispatch took a long time", "elapsed", elapsed)
		}
	}
	e.Log.Debug("stopped main loop", "reason", context.Cause(e.Context))
	if cause := context.Cause(e.Context); cause != nil && cause != context.Canceled {
		return cause
	}
	return nil
}
