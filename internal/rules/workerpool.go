// internal/rules/workerpool.go
package rules

import (
	"context"
	"sync"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue.
// Every processed job produces exactly one value on results.
type workerPool[T, R any] struct {
	queue   chan T
	results chan R
	process func(T) R
	wg      sync.WaitGroup
}

// newWorkerPool starts n workers reading from a queue of capacity depth.
// Results are buffered to depth as well; the caller must consume them
// concurrently with Submit.
func newWorkerPool[T, R any](ctx context.Context, n, depth int, fn func(T) R) *workerPool[T, R] {
	if n < 1 {
		n = 1
	}
	if depth < 0 {
		depth = 0
	}
	p := &workerPool[T, R]{
		queue:   make(chan T, depth),
		results: make(chan R, depth),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T, R]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.results <- p.process(t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues t, blocking while the queue is full.
// Returns false if ctx is done first.
func (p *workerPool[T, R]) Submit(ctx context.Context, t T) bool {
	select {
	case p.queue <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// Results is closed by Drain once every worker has exited.
func (p *workerPool[T, R]) Results() <-chan R {
	return p.results
}

// Drain closes the queue, waits for all workers to finish and closes Results.
func (p *workerPool[T, R]) Drain() {
	close(p.queue)
	p.wg.Wait()
	close(p.results)
}
