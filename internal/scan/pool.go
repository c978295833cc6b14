package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/opportunity-scanner/internal/logging"
)

// Pool runs scan bodies on a bounded set of workers. Every submitted body is
// guaranteed to finish: panics are recovered and reported through onPanic so
// the scan can still reach a terminal state.
type Pool struct {
	workerSem chan struct{}
	wg        sync.WaitGroup
	logger    *logging.Logger

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

func NewPool(workers int, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		workerSem: make(chan struct{}, workers),
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Submit schedules body on a worker and returns without waiting for a free
// slot; a saturated pool queues the body, it never stalls the caller. onPanic
// runs if body panics; it must not panic itself.
func (p *Pool) Submit(ctx context.Context, body func(ctx context.Context), onPanic func(recovered interface{})) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("pool is stopped")
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		select {
		case p.workerSem <- struct{}{}:
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}

		defer func() {
			if r := recover(); r != nil {
				p.logger.WithField("panic", fmt.Sprintf("%v", r)).Error("Scan worker panicked")
				onPanic(r)
			}
			<-p.workerSem
		}()
		body(ctx)
	}()

	return nil
}

// Stop rejects new submissions, drops queued bodies that have not claimed a
// worker yet, and waits for in-flight work to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// Active returns the number of busy workers
func (p *Pool) Active() int {
	return len(p.workerSem)
}
