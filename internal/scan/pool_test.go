package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opportunity-scanner/internal/logging"
)

func testPool(workers int) *Pool {
	return NewPool(workers, logging.NewLogger(logging.LevelError, logging.FormatJSON))
}

func TestPoolRunsSubmittedBodies(t *testing.T) {
	p := testPool(2)
	defer p.Stop()

	var count int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt32(&count, 1)
		}, func(interface{}) { wg.Done() })
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int32(5), atomic.LoadInt32(&count))
}

func TestPoolRecoversPanics(t *testing.T) {
	p := testPool(1)
	defer p.Stop()

	recovered := make(chan interface{}, 1)
	err := p.Submit(context.Background(), func(ctx context.Context) {
		panic("scan body exploded")
	}, func(r interface{}) {
		recovered <- r
	})
	require.NoError(t, err)

	select {
	case r := <-recovered:
		assert.Equal(t, "scan body exploded", r)
	case <-time.After(time.Second):
		t.Fatal("panic handler never ran")
	}

	// The worker slot is released after a panic.
	done := make(chan struct{})
	err = p.Submit(context.Background(), func(ctx context.Context) {
		close(done)
	}, func(interface{}) {})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool wedged after panic")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := testPool(2)
	defer p.Stop()

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		}, func(interface{}) { wg.Done() })
		require.NoError(t, err)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolSubmitReturnsWhileSaturated(t *testing.T) {
	p := testPool(1)
	defer p.Stop()

	release := make(chan struct{})
	err := p.Submit(context.Background(), func(ctx context.Context) {
		<-release
	}, func(interface{}) {})
	require.NoError(t, err)

	// With the only worker occupied, Submit must still hand back control;
	// the body waits for a slot, the caller does not.
	queued := make(chan struct{})
	returned := make(chan error, 1)
	go func() {
		returned <- p.Submit(context.Background(), func(ctx context.Context) {
			close(queued)
		}, func(interface{}) {})
	}()

	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Submit blocked while pool saturated")
	}

	select {
	case <-queued:
		t.Fatal("queued body ran before a worker freed")
	default:
	}

	close(release)

	select {
	case <-queued:
	case <-time.After(time.Second):
		t.Fatal("queued body never ran after a worker freed")
	}
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := testPool(1)
	p.Stop()

	err := p.Submit(context.Background(), func(ctx context.Context) {}, func(interface{}) {})
	assert.Error(t, err)
}
