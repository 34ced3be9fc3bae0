// Package deferred schedules completion callbacks on a bounded worker
// pool, so a buffered result set is delivered only after the unit of work
// that produced it has yielded.
package deferred

import "github.com/panjf2000/ants/v2"

// Executor owns an ants pool used for zero-delay deferred delivery.
type Executor struct {
	pool *ants.Pool
}

// New creates an executor backed by size workers.
func New(size int) (*Executor, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Executor{pool: pool}, nil
}

// Submit enqueues fn. It never runs fn inline on the calling goroutine.
func (e *Executor) Submit(fn func()) error {
	return e.pool.Submit(fn)
}

// Release shuts the pool down.
func (e *Executor) Release() {
	e.pool.Release()
}
