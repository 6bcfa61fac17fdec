package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when a run is submitted to a closed pool.
var ErrPoolClosed = errors.New("simulation pool is closed")

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Running   int64 `json:"running"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
}

// Pool bounds the number of simulation runs executing at once. Runs share no
// state, so the pool only limits CPU pressure.
type Pool struct {
	slots chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool

	running, succeeded, failed, panicked atomic.Int64
}

// NewPool creates a pool running at most size jobs concurrently.
func NewPool(size int) *Pool {
	return &Pool{
		slots: make(chan struct{}, max(1, size)),
		stop:  make(chan struct{}),
	}
}

// Submit runs fn on the pool. It blocks while every slot is taken and gives
// up when ctx is done or the pool closes. A panic inside fn is recovered and
// reported to onPanic, when set, as an error.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error, onPanic ...func(error)) error {
	if p.isClosed() {
		return ErrPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrPoolClosed
	}

	// Add must happen under the lock so Close cannot start waiting between
	// the check and the increment.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.running.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				p.panicked.Add(1)
				p.failed.Add(1)
				for _, h := range onPanic {
					h(fmt.Errorf("simulation run panicked: %v", rec))
				}
			}
			p.running.Add(-1)
			<-p.slots
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			p.failed.Add(1)
			return
		}
		p.succeeded.Add(1)
	}()
	return nil
}

// Wait blocks until every submitted run has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close rejects further submissions and waits for running jobs. It is
// idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()
	p.Wait()
}

// Stats returns current counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Running:   p.running.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
