// Package workers runs tasks on a bounded number of concurrent execution slots.
//
// A Pool is created paused. Resume(n) opens n slots; Submit queues a task and returns
// a Handle immediately; the task starts once a slot frees up, in priority order.
// Pause stops new submissions, captures every not-yet-started handle as frozen and
// cancels the context of every running task. The next Resume re-queues the frozen
// handles ahead of anything submitted later.
//
// Every started task produces exactly one Started and one Done callback on the
// Listener, in that order, from the goroutine that runs it. Callbacks are never
// invoked while the pool's lock is held, so listeners may call back into the pool.
package workers

//go:generate mockgen -source=pool.go -package=workers -destination=listener_mock.go

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/twitter/depsched/common/stats"
	"github.com/twitter/depsched/sched"
	"github.com/twitter/depsched/sched/queue"
)

// Task is a unit of work the pool can run.
type Task interface {
	queue.Item
	Run(ctx context.Context) error
}

// Listener is notified as tasks move through their slot.
type Listener interface {
	// The dispatch limiter admitted the task and it is about to run, or the task was
	// cancelled while waiting on the limiter.
	Started(h *Handle)
	// The task's Run returned (or panicked, or was cancelled while throttled) with err.
	Done(h *Handle, err error)
}

// DefaultSlots returns the slot count used when a non-positive count is requested.
func DefaultSlots() int {
	return 2 * runtime.NumCPU()
}

type Option func(*Pool)

// WithStats records pool gauges and counters into stat.
func WithStats(stat stats.StatsReceiver) Option {
	return func(p *Pool) { p.stat = stat }
}

// WithTaskTimeout gives every task a deadline of d from the moment it starts. Zero disables it.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

// WithDispatchRate limits task starts to r per second with the given burst. Zero disables it.
func WithDispatchRate(r float64, burst int) Option {
	return func(p *Pool) {
		if r <= 0 {
			p.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

type Pool struct {
	mu       sync.Mutex
	listener Listener
	pending  *queue.ReadyQueue
	frozen   []*Handle
	running  map[*Handle]struct{}
	slots    int
	paused   bool
	wg       sync.WaitGroup

	timeout time.Duration
	limiter *rate.Limiter
	stat    stats.StatsReceiver
}

// New returns a paused pool reporting to listener.
func New(listener Listener, opts ...Option) *Pool {
	p := &Pool{
		listener: listener,
		pending:  queue.NewReadyQueue(),
		running:  make(map[*Handle]struct{}),
		paused:   true,
		stat:     stats.NilStatsReceiver(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit queues task and returns its handle without waiting for it to start.
// Returns PoolUnavailableError if the pool is paused.
func (p *Pool) Submit(task Task) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return nil, errors.WithStack(&sched.PoolUnavailableError{})
	}
	h := &Handle{task: task, pool: p, state: pending}
	if !p.pending.Push(h) {
		panic(fmt.Sprintf("fresh handle already pending: %+v", task))
	}
	p.fill()
	return h, nil
}

// Cancel requests cancellation of h. It returns true if the task was removed before it
// started, in which case no listener callbacks will ever be made for h. A running task has
// its context cancelled and returns false; it still reports Done when its Run returns.
func (p *Pool) Cancel(h *Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h.cancelled = true
	switch h.state {
	case pending:
		if !p.pending.Remove(h) {
			panic(fmt.Sprintf("pending handle missing from queue: %+v", h.task))
		}
		h.state = done
		p.stat.Counter(stats.PoolPreemptedCounter).Inc(1)
		p.updateGauges()
		return true
	case frozen:
		p.removeFrozen(h)
		h.state = done
		p.stat.Counter(stats.PoolPreemptedCounter).Inc(1)
		p.updateGauges()
		return true
	case running:
		h.cancel()
		return false
	case done:
		return false
	}
	panic(fmt.Sprintf("unknown handle state %d", h.state))
}

// Pause stops accepting submissions and returns the tasks that had not started, in
// priority order. Their handles stay valid and are re-queued by the next Resume.
// Running tasks have their contexts cancelled and are flagged as interrupted.
func (p *Pool) Pause() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return nil
	}
	p.paused = true
	p.slots = 0

	for _, item := range p.pending.Drain() {
		h := item.(*Handle)
		h.state = frozen
		p.frozen = append(p.frozen, h)
	}
	for h := range p.running {
		h.interrupted = true
		h.cancel()
		p.stat.Counter(stats.PoolInterruptedCounter).Inc(1)
	}
	p.updateGauges()

	log.WithFields(log.Fields{
		"frozen":      len(p.frozen),
		"interrupted": len(p.running),
	}).Info("Paused worker pool")

	tasks := make([]Task, 0, len(p.frozen))
	for _, h := range p.frozen {
		tasks = append(tasks, h.task)
	}
	return tasks
}

// Resume sets the slot count to n (DefaultSlots() if n <= 0), starts accepting
// submissions and re-queues every handle frozen by the last Pause.
func (p *Pool) Resume(n int) {
	if n <= 0 {
		n = DefaultSlots()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = n
	p.paused = false
	for _, h := range p.frozen {
		h.state = pending
		p.pending.Push(h)
	}
	resubmitted := len(p.frozen)
	p.frozen = nil
	p.fill()

	log.WithFields(log.Fields{
		"slots":       n,
		"resubmitted": resubmitted,
	}).Info("Resumed worker pool")
}

// Slots returns the configured slot count, 0 while paused.
func (p *Pool) Slots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Paused reports whether the pool is refusing submissions.
func (p *Pool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Wait blocks until no task is executing. Tasks submitted concurrently with Wait may be missed.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Start pending handles while slots are free. Requires p.mu.
func (p *Pool) fill() {
	for !p.paused && len(p.running) < p.slots {
		item := p.pending.Pop()
		if item == nil {
			break
		}
		h := item.(*Handle)
		if h.state != pending {
			panic(fmt.Sprintf("dispatching handle in state %s: %+v", h.state, h.task))
		}
		var ctx context.Context
		if p.timeout > 0 {
			ctx, h.cancel = context.WithTimeout(context.Background(), p.timeout)
		} else {
			ctx, h.cancel = context.WithCancel(context.Background())
		}
		h.state = running
		p.running[h] = struct{}{}
		p.wg.Add(1)
		p.stat.Counter(stats.PoolStartedCounter).Inc(1)
		go p.run(ctx, h)
	}
	p.updateGauges()
}

func (p *Pool) run(ctx context.Context, h *Handle) {
	defer p.wg.Done()

	// Started is reported once the limiter admits the task, or once the task was
	// cancelled while waiting on it.
	err := p.throttle(ctx)
	p.listener.Started(h)
	if err == nil {
		err = p.invoke(ctx, h)
	}

	p.mu.Lock()
	h.state = done
	h.cancel()
	delete(p.running, h)
	p.updateGauges()
	p.mu.Unlock()

	p.listener.Done(h, err)

	p.mu.Lock()
	p.fill()
	p.mu.Unlock()
}

// Runs the task, converting a panic into an error.
func (p *Pool) invoke(ctx context.Context, h *Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.stat.Counter(stats.PoolPanicCounter).Inc(1)
			log.WithFields(log.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Task panicked")
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return h.task.Run(ctx)
}

func (p *Pool) throttle(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	r := p.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func (p *Pool) removeFrozen(h *Handle) {
	for i, f := range p.frozen {
		if f == h {
			p.frozen = append(p.frozen[:i], p.frozen[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("frozen handle missing from frozen list: %+v", h.task))
}

func (p *Pool) updateGauges() {
	p.stat.Gauge(stats.PoolSlotsGauge).Update(int64(p.slots))
	p.stat.Gauge(stats.PoolRunningGauge).Update(int64(len(p.running)))
	p.stat.Gauge(stats.PoolPendingGauge).Update(int64(p.pending.Len()))
	p.stat.Gauge(stats.PoolFrozenGauge).Update(int64(len(p.frozen)))
}
