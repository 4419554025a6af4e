// Package queue runs mutating store operations one at a time.
//
// A Serializer is a single-consumer FIFO: any goroutine may Enqueue, and a
// single worker runs tasks in arrival order. Each task sees the effects of
// every task enqueued before it, which rules out lost updates between two
// load-modify-save cycles. A task that fails or panics is logged and
// reported on its Handle; the tasks behind it still run.
package queue

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is reported by handles of tasks enqueued after Close.
var ErrClosed = errors.New("queue: serializer closed")

// Handle resolves when its task has finished.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed once the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

type job struct {
	name   string
	run    func() error
	handle *Handle
}

// Serializer is a FIFO of tasks drained by one worker goroutine.
type Serializer struct {
	log *zap.Logger

	mu     sync.Mutex
	jobs   []job
	closed bool
	signal chan struct{} // buffered, size 1; coalesces wakeups
	exited chan struct{}
}

// New starts a Serializer and its worker.
func New(log *zap.Logger) *Serializer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Serializer{
		log:    log.Named("queue"),
		jobs:   make([]job, 0, 16),
		signal: make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Enqueue schedules task after every previously enqueued task.
func (s *Serializer) Enqueue(name string, task func() error) *Handle {
	h := &Handle{done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.err = ErrClosed
		close(h.done)
		return h
	}
	s.jobs = append(s.jobs, job{name: name, run: task, handle: h})
	// Signal under the lock so Close cannot close the channel in between.
	select {
	case s.signal <- struct{}{}:
	default:
	}
	s.mu.Unlock()
	return h
}

// Do enqueues task and waits for it.
func (s *Serializer) Do(name string, task func() error) error {
	return s.Enqueue(name, task).Wait()
}

// Len returns the number of tasks waiting to run.
func (s *Serializer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Close stops accepting tasks, lets the worker drain what is already
// queued, and waits for it to exit.
func (s *Serializer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.signal)
	}
	s.mu.Unlock()
	<-s.exited
}

func (s *Serializer) loop() {
	defer close(s.exited)
	for {
		j, ok := s.next()
		if ok {
			s.execute(j)
			continue
		}
		if _, open := <-s.signal; !open {
			// Closed: drain anything enqueued before Close took the lock.
			for {
				j, ok := s.next()
				if !ok {
					return
				}
				s.execute(j)
			}
		}
	}
}

func (s *Serializer) next() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return job{}, false
	}
	j := s.jobs[0]
	s.jobs[0] = job{}
	if len(s.jobs) == 1 {
		s.jobs = s.jobs[:0]
	} else {
		s.jobs = s.jobs[1:]
	}
	return j, true
}

func (s *Serializer) execute(j job) {
	defer close(j.handle.done)
	defer func() {
		if r := recover(); r != nil {
			j.handle.err = fmt.Errorf("task %s panicked: %v", j.name, r)
			s.log.Error("task panicked", zap.String("task", j.name), zap.Any("panic", r))
		}
	}()
	if err := j.run(); err != nil {
		j.handle.err = err
		s.log.Error("task failed", zap.String("task", j.name), zap.Error(err))
	}
}
