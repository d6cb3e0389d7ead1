// Package worker runs background tasks on named FIFO queues, one goroutine
// per queue. Tasks on the same queue never overlap; queues run independently.
package worker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/time/rate"
)

// Task is a unit of background work. The context is cancelled when the pool
// shuts down; long tasks should check it between steps.
type Task func(ctx context.Context)

type task struct {
	name      string
	fn        Task
	uniqueKey string
	done      chan struct{}
}

type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*task
	unique  map[string]*task
	limiter *rate.Limiter
	closed  bool
}

// Pool owns the named queues. Queues are created on first use.
type Pool struct {
	mu     sync.Mutex
	queues map[string]*queue
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a queue at creation time.
type Option func(*queue)

// WithRateLimit caps how often tasks on the queue may start.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(q *queue) { q.limiter = rate.NewLimiter(r, burst) }
}

// NewPool returns an empty pool. Queues spin up lazily.
func NewPool(log *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queues: map[string]*queue{},
		log:    log.With("component", "worker"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Configure creates the named queue with the given options. Calling it after
// the queue exists is a no-op; configure before first submit.
func (p *Pool) Configure(name string, opts ...Option) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queues[name]; ok {
		return
	}
	p.startQueueLocked(name, opts...)
}

func (p *Pool) getQueue(name string) *queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	if q, ok := p.queues[name]; ok {
		return q
	}
	return p.startQueueLocked(name)
}

func (p *Pool) startQueueLocked(name string, opts ...Option) *queue {
	q := &queue{unique: map[string]*task{}}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	p.queues[name] = q
	p.wg.Add(1)
	go p.run(name, q)
	return q
}

func (p *Pool) run(name string, q *queue) {
	defer p.wg.Done()
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed && len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		if t.uniqueKey != "" && q.unique[t.uniqueKey] == t {
			delete(q.unique, t.uniqueKey)
		}
		q.mu.Unlock()

		if q.limiter != nil {
			if err := q.limiter.Wait(p.ctx); err != nil {
				close(t.done)
				continue
			}
		}
		p.exec(name, t)
	}
}

func (p *Pool) exec(name string, t *task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked",
				"queue", name, "task", t.name,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	t.fn(p.ctx)
}

// Submit queues fn on the named queue and returns immediately.
func (p *Pool) Submit(queueName, name string, fn Task) {
	p.submit(queueName, &task{name: name, fn: fn, done: make(chan struct{})})
}

// SubmitUnique queues fn under key. If a task with the same key is still
// pending on the queue, its body is replaced by fn instead of queueing a
// second run; the last submission wins.
func (p *Pool) SubmitUnique(queueName, key string, fn Task) {
	q := p.getQueue(queueName)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if prev, ok := q.unique[key]; ok {
		prev.fn = fn
		q.mu.Unlock()
		return
	}
	t := &task{name: key, fn: fn, uniqueKey: key, done: make(chan struct{})}
	q.unique[key] = t
	q.pending = append(q.pending, t)
	q.cond.Signal()
	q.mu.Unlock()
}

func (p *Pool) submit(queueName string, t *task) {
	q := p.getQueue(queueName)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		close(t.done)
		return
	}
	q.pending = append(q.pending, t)
	q.cond.Signal()
	q.mu.Unlock()
}

// Do runs fn on the named queue and waits for it to finish, returning its
// error. The wait aborts if ctx is cancelled; the task still runs.
func (p *Pool) Do(ctx context.Context, queueName, name string, fn func(ctx context.Context) error) error {
	var errOut error
	t := &task{
		name: name,
		fn:   func(ctx context.Context) { errOut = fn(ctx) },
		done: make(chan struct{}),
	}
	p.submit(queueName, t)
	select {
	case <-t.done:
		return errOut
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DrainAndWait blocks until every task queued on the named queue before the
// call has finished.
func (p *Pool) DrainAndWait(ctx context.Context, queueName string) error {
	return p.Do(ctx, queueName, "drain", func(context.Context) error { return nil })
}

// Shutdown cancels running tasks and waits for all queue goroutines to exit.
// Pending tasks still drain; their contexts are already cancelled.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	for _, q := range p.queues {
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
