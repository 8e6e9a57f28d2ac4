package raster

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// Result is the outcome of one pooled render.
type Result struct {
	Image *Image
	Err   error
}

// Pool runs render requests across a fixed set of independent contexts, one
// checked out per in-flight render. Contexts never share GPU objects, so
// requests stay isolated from each other; a request that fails poisons
// nothing but its own result.
type Pool struct {
	workers  worker.DynamicWorkerPool
	contexts chan *poolSlot

	wg     sync.WaitGroup
	taskID atomic.Int64

	mu     sync.Mutex
	closed bool
}

type poolSlot struct {
	ctx *Context
	r   Rasterizer
}

// NewPool creates n contexts and a worker pool feeding them. Queue size of
// 256 gives submission headroom without unbounded buffering.
//
// Parameters:
//   - n: number of contexts and workers, must be positive
//   - opts: context options applied to every created context
//
// Returns:
//   - *Pool: the pool
//   - error: a *ContextError when any context fails to come up; contexts
//     created before the failure are released
func NewPool(n int, opts ...ContextOption) (*Pool, error) {
	if n <= 0 {
		return nil, &ContextError{Op: "pool size must be positive"}
	}

	p := &Pool{
		workers:  worker.NewDynamicWorkerPool(n, 256, 1*time.Second),
		contexts: make(chan *poolSlot, n),
	}
	for i := 0; i < n; i++ {
		ctx, err := NewContext(opts...)
		if err != nil {
			p.releaseSlots()
			return nil, err
		}
		p.contexts <- &poolSlot{ctx: ctx, r: NewRasterizer(ctx)}
	}
	return p, nil
}

// Submit queues one request. The returned channel is buffered and receives
// exactly one Result, so the caller may drop it without leaking a goroutine.
//
// Parameters:
//   - req: the request to render
//
// Returns:
//   - <-chan Result: delivery channel for the render's outcome
func (p *Pool) Submit(req RenderRequest) <-chan Result {
	out := make(chan Result, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		out <- Result{Err: &ContextError{Op: "submit on closed pool"}}
		return out
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.workers.SubmitTask(worker.Task{
		ID: int(p.taskID.Add(1)),
		Do: func() (any, error) {
			defer p.wg.Done()

			slot := <-p.contexts
			img, err := slot.r.Rasterize(req)
			p.contexts <- slot

			out <- Result{Image: img, Err: err}
			return img, err
		},
	})
	return out
}

// Close stops accepting new requests, waits for in-flight renders, shuts the
// worker pool down, and releases every context. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	// Wait blocks until the now-idle workers exit, so no pool goroutine
	// outlives Close.
	p.workers.Wait()
	p.releaseSlots()
}

func (p *Pool) releaseSlots() {
	for {
		select {
		case slot := <-p.contexts:
			slot.r.Release()
			slot.ctx.Release()
		default:
			return
		}
	}
}
