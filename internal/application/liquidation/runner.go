package liquidation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// RunnerState is the state of a Runner.
type RunnerState int

const (
	Idle RunnerState = iota
	Running
	RunningWithPending
)

func (s RunnerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case RunningWithPending:
		return "running with pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Runner runs a task at most once at a time. Triggers that arrive while the task is running
// collapse into a single rerun once it finishes.
type Runner struct {
	ctx  context.Context
	task func(ctx context.Context)

	mu    sync.Mutex
	idle  *sync.Cond
	state RunnerState
}

// NewRunner creates a Runner. Once ctx is done no new run starts and pending reruns are
// dropped; a run already in flight is not cancelled and completes.
func NewRunner(ctx context.Context, task func(ctx context.Context)) *Runner {
	r := &Runner{ctx: ctx, task: task}
	r.idle = sync.NewCond(&r.mu)
	return r
}

// Trigger starts the task if idle, otherwise schedules one rerun. It never blocks.
func (r *Runner) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Idle:
		if r.ctx.Err() != nil {
			return
		}
		r.state = Running
		go r.loop()
	case Running:
		r.state = RunningWithPending
	case RunningWithPending:
	}
}

// State returns the current state.
func (r *Runner) State() RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Wait blocks until the runner is idle.
func (r *Runner) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.state != Idle {
		r.idle.Wait()
	}
}

func (r *Runner) loop() {
	for {
		r.runOnce()

		r.mu.Lock()
		if r.state == RunningWithPending && r.ctx.Err() == nil {
			r.state = Running
			r.mu.Unlock()
			continue
		}
		r.state = Idle
		r.idle.Broadcast()
		r.mu.Unlock()
		return
	}
}

func (r *Runner) runOnce() {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("runner: task panicked", "panic", p, "stack", string(debug.Stack()))
		}
	}()
	r.task(context.WithoutCancel(r.ctx))
}
