package runner

import "golang.org/x/sync/errgroup"

// Pool schedules tasks with bounded parallelism. Tasks record their own
// failures as data; nothing a task does can abort the pool or its
// siblings. Each run uses two independent pools, one for browser-heavy
// capture work and one for decode-heavy compare work, so the phases can
// be sized separately.
type Pool struct {
	group errgroup.Group
}

// NewPool creates a pool admitting at most limit tasks at once. Limits
// below one fall back to sequential execution.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	p := &Pool{}
	p.group.SetLimit(limit)
	return p
}

// Go enqueues a task, blocking until the pool has a free slot. Tasks are
// admitted in enqueue order.
func (p *Pool) Go(task func()) {
	p.group.Go(func() error {
		task()
		return nil
	})
}

// Wait blocks until every enqueued task has finished.
func (p *Pool) Wait() {
	// Tasks never return errors, so neither does Wait.
	_ = p.group.Wait()
}
