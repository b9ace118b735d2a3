// Package taskqueue serializes operations against one resource.
package taskqueue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("taskqueue: closed")

// Task is one operation applied to the owning resource.
type Task func(ctx context.Context) error

type item struct {
	task Task
	// barrier is closed when the consumer reaches it, even after a failure.
	barrier chan struct{}
}

// Queue runs tasks one at a time in submission order on a single consumer
// goroutine. After the first failure the remaining tasks are drained without
// running and Submit returns that failure.
type Queue struct {
	ctx    context.Context
	mu     sync.Mutex
	items  []item
	wake   chan struct{}
	closed bool
	err    error
	done   chan struct{}
}

// New starts the consumer. ctx is passed to every task.
func New(ctx context.Context) *Queue {
	q := &Queue{
		ctx:  ctx,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues task. It never blocks on task execution.
func (q *Queue) Submit(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, item{task: task})
	q.signal()
	return nil
}

// Close stops accepting tasks; queued tasks still run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signal()
}

// Flush waits until every task submitted before it has run, returning the
// first failure so far.
func (q *Queue) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	q.mu.Lock()
	if q.err != nil || q.closed {
		err := q.err
		q.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return err
	}
	q.items = append(q.items, item{barrier: reached})
	q.signal()
	q.mu.Unlock()
	select {
	case <-reached:
		return q.Err()
	case <-q.done:
		return q.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the queue is closed and drained, returning the first failure.
func (q *Queue) Wait() error {
	<-q.done
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Err returns the first failure so far.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		next := q.items[0]
		q.items[0] = item{}
		q.items = q.items[1:]
		failed := q.err != nil
		q.mu.Unlock()

		if next.barrier != nil {
			close(next.barrier)
			continue
		}
		if failed {
			continue
		}
		if err := q.exec(next.task); err != nil {
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}
	}
}

func (q *Queue) exec(task Task) error {
	if err := q.ctx.Err(); err != nil {
		return err
	}
	return task(q.ctx)
}
