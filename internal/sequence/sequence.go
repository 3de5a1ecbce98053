// Package sequence provides a sequential task runner: tasks posted to a
// Sequence run one at a time, in posting order, on a single goroutine.
// State touched only from tasks of one Sequence needs no locking.
package sequence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned when a task is posted to a closed Sequence.
var ErrClosed = errors.New("sequence: closed")

// TaskRunner accepts tasks for asynchronous, ordered execution.
type TaskRunner interface {
	// Post queues task and reports whether it was accepted.
	Post(task func()) bool
}

// Sequence runs posted tasks serially on its own goroutine.
type Sequence struct {
	log  *slog.Logger
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	done chan struct{}
}

// New starts a Sequence. If log is nil, slog.Default() is used.
func New(name string, log *slog.Logger) *Sequence {
	if log == nil {
		log = slog.Default()
	}
	s := &Sequence{
		log:  log.With("component", "sequence", "sequence", name),
		name: name,
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Name returns the name the Sequence was created with.
func (s *Sequence) Name() string { return s.name }

// Post queues task. It never blocks and never runs task on the caller's
// stack. It returns false once the Sequence is closed.
func (s *Sequence) Post(task func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tasks = append(s.tasks, task)
	s.cond.Signal()
	return true
}

// Run posts task and blocks until it has run or ctx is done.
func (s *Sequence) Run(ctx context.Context, task func()) error {
	ran := make(chan struct{})
	if !s.Post(func() {
		defer close(ran)
		task()
	}) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until every task posted before the call has run.
func (s *Sequence) Flush(ctx context.Context) error {
	return s.Run(ctx, func() {})
}

// Close stops accepting new tasks. Tasks already queued still run.
func (s *Sequence) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Done is closed after Close once the queue has drained.
func (s *Sequence) Done() <-chan struct{} {
	return s.done
}

func (s *Sequence) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.tasks) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			s.log.Debug("sequence drained")
			return
		}
		task := s.tasks[0]
		s.tasks[0] = nil
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		task()
	}
}

// Bind wraps fn so that every call posts fn onto r instead of running it on
// the caller's goroutine. Calls made after r is closed are dropped, so a
// callback that must run exactly once, such as a stream read completion,
// must not be bound to a runner that can close before it fires.
func Bind[T any](r TaskRunner, fn func(T)) func(T) {
	return func(v T) {
		r.Post(func() { fn(v) })
	}
}

// BindFunc is Bind for callbacks without arguments. Calls after r is closed
// are dropped.
func BindFunc(r TaskRunner, fn func()) func() {
	return func() {
		r.Post(fn)
	}
}
