package processing

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrRenderTimeout indicates the pool did not return a result within the
// configured deadline. Callers fall back to inline rendering.
var ErrRenderTimeout = errors.New("render pool timeout")

// ErrPoolClosed indicates Submit was called after Close.
var ErrPoolClosed = errors.New("render pool closed")

type renderTask struct {
	fn    func() (*image.NRGBA, error)
	reply chan renderResult
}

type renderResult struct {
	img *image.NRGBA
	err error
}

// RenderPool offloads CPU-bound image rendering to a fixed set of worker
// goroutines. One task in, one result out; workers own no shared state, so
// a result that arrives after the deadline is simply dropped.
type RenderPool struct {
	tasks   chan renderTask
	timeout time.Duration
	done    chan struct{}
}

// NewRenderPool starts the worker goroutines.
func NewRenderPool(workers int, timeout time.Duration) *RenderPool {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pool := &RenderPool{
		tasks:   make(chan renderTask),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

func (p *RenderPool) worker() {
	for {
		select {
		case <-p.done:
			return
		case task := <-p.tasks:
			img, err := task.fn()
			task.reply <- renderResult{img: img, err: err}
		}
	}
}

// Submit runs fn on a pool worker and waits for the result, bounded by the
// pool deadline and the caller's context.
func (p *RenderPool) Submit(ctx context.Context, fn func() (*image.NRGBA, error)) (*image.NRGBA, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	// Buffered so a worker finishing after we gave up never blocks.
	task := renderTask{fn: fn, reply: make(chan renderResult, 1)}

	select {
	case p.tasks <- task:
	case <-timer.C:
		return nil, ErrRenderTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}

	select {
	case result := <-task.reply:
		return result.img, result.err
	case <-timer.C:
		return nil, ErrRenderTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers. In-flight tasks finish; queued submissions fail
// with ErrPoolClosed.
func (p *RenderPool) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
