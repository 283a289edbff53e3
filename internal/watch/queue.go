// Package watch turns file system changes into re-index work.
package watch

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize bounds pending work when no size is given.
const DefaultQueueSize = 1024

// Queue is a bounded FIFO of paths that coalesces duplicates. A path
// already waiting is not queued twice; a path being processed is marked
// dirty and processed once more when the current run finishes.
type Queue struct {
	mu      sync.Mutex
	order   []string
	pending map[string]bool
	running map[string]bool
	dirty   map[string]bool

	slots chan struct{}
	wake  chan struct{}

	pushed    atomic.Int64
	coalesced atomic.Int64
	processed atomic.Int64
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		pending: make(map[string]bool),
		running: make(map[string]bool),
		dirty:   make(map[string]bool),
		slots:   make(chan struct{}, size),
		wake:    make(chan struct{}, 1),
	}
}

// coalesce absorbs path into existing work. Callers hold q.mu.
func (q *Queue) coalesce(path string) bool {
	if q.pending[path] {
		q.coalesced.Add(1)
		return true
	}
	if q.running[path] {
		q.dirty[path] = true
		q.coalesced.Add(1)
		return true
	}
	return false
}

// Push enqueues path. It blocks while the queue is full and returns
// ctx.Err() if ctx ends first.
func (q *Queue) Push(ctx context.Context, path string) error {
	q.mu.Lock()
	if q.coalesce(path) {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.mu.Lock()
	// state may have changed while waiting for a slot
	if q.coalesce(path) {
		q.mu.Unlock()
		<-q.slots
		return nil
	}
	q.pending[path] = true
	q.order = append(q.order, path)
	q.mu.Unlock()

	q.pushed.Add(1)
	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next blocks until a path is available and marks it running.
func (q *Queue) next(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			path := q.order[0]
			q.order = q.order[1:]
			delete(q.pending, path)
			q.running[path] = true
			more := len(q.order) > 0
			q.mu.Unlock()

			<-q.slots
			if more {
				q.signal()
			}
			return path, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// finish reports whether path went dirty while running. If so it stays
// running and must be processed again.
func (q *Queue) finish(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dirty[path] {
		delete(q.dirty, path)
		return true
	}
	delete(q.running, path)
	return false
}

func (q *Queue) release(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.dirty, path)
	delete(q.running, path)
}

// Run processes paths with a fixed pool of workers until ctx is cancelled.
// fn is never called concurrently for the same path.
func (q *Queue) Run(ctx context.Context, workers int, fn func(ctx context.Context, path string)) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				path, err := q.next(ctx)
				if err != nil {
					return
				}
				for {
					fn(ctx, path)
					q.processed.Add(1)
					if !q.finish(path) {
						break
					}
					if ctx.Err() != nil {
						q.release(path)
						break
					}
				}
			}
		}()
	}
	wg.Wait()
}

// Len is the number of paths waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// QueueStats are cumulative counters.
type QueueStats struct {
	Pushed    int64
	Coalesced int64
	Processed int64
	Pending   int
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pushed:    q.pushed.Load(),
		Coalesced: q.coalesced.Load(),
		Processed: q.processed.Load(),
		Pending:   q.Len(),
	}
}
