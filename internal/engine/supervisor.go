package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"multichat/internal/models"
)

// State is the lifecycle stage of a dispatch supervisor.
type State int32

const (
	StateRunning State = iota
	StateForcedTermination
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateForcedTermination:
		return "FORCED_TERMINATION"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// ErrDispatchTimeout is the cancellation cause recorded when the dispatch
// ceiling fires.
var ErrDispatchTimeout = errors.New("dispatch ceiling reached")

// Supervisor bounds one dispatch with a wall-clock ceiling and records why
// the dispatch was cut short.
type Supervisor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	state    atomic.Int32
	stopOnce sync.Once
}

// NewSupervisor derives the dispatch context from parent. A non-positive
// timeout disables the ceiling; parent cancellation still applies.
func NewSupervisor(parent context.Context, timeout time.Duration) *Supervisor {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeoutCause(parent, timeout, ErrDispatchTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	return &Supervisor{ctx: ctx, cancel: cancel}
}

// Context is the context every in-flight call of the dispatch runs under.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Done is closed once the ceiling fires, the caller cancels or Stop is called.
func (s *Supervisor) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Interrupted reports whether the dispatch context has ended.
func (s *Supervisor) Interrupted() bool {
	return s.ctx.Err() != nil
}

// Reason maps how the context ended onto the terminal error text. Any
// deadline, ours or the caller's, yields "timed out"; every other
// cancellation yields "cancelled" whatever cause the caller attached.
func (s *Supervisor) Reason() string {
	if errors.Is(s.ctx.Err(), context.DeadlineExceeded) {
		return models.ErrorTimedOut
	}
	return models.ErrorCancelled
}

// Terminate marks the dispatch as forcibly ended. It is a no-op once the
// supervisor has completed.
func (s *Supervisor) Terminate() {
	s.state.CompareAndSwap(int32(StateRunning), int32(StateForcedTermination))
}

// Stop cancels every in-flight call and completes the supervisor. Safe to
// call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateComplete))
		s.cancel()
	})
}

// State returns the current lifecycle stage.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}
