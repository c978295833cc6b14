package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opportunity-scanner/internal/logging"
)

// OrphanFlagger flags scans stuck past the orphan deadline as failed
type OrphanFlagger interface {
	FlagOrphans(ctx context.Context, olderThan time.Duration) (int, error)
}

// Janitor flags scans stuck past the orphan deadline as failed, both running
// scans whose worker died mid-scan and pending scans no worker ever picked
// up. It is the safety net for bodies lost to a process crash: a restarted
// instance sweeps up whatever the old one left behind.
type Janitor struct {
	scanRepo OrphanFlagger
	deadline time.Duration
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewJanitor(scanRepo OrphanFlagger, deadline, interval time.Duration, logger *logging.Logger) *Janitor {
	if deadline <= 0 {
		deadline = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		scanRepo: scanRepo,
		deadline: deadline,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("janitor is already running")
	}
	j.running = true
	j.mu.Unlock()

	go j.loop(ctx)
	return nil
}

// Stop signals the loop and waits for it to exit
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return fmt.Errorf("janitor is not running")
	}
	j.running = false
	j.mu.Unlock()

	close(j.stopCh)

	select {
	case <-j.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			if err := j.Sweep(ctx); err != nil {
				j.logger.WithError(err).Error("Orphan sweep failed")
			}
		}
	}
}

// Sweep flags scans running longer than the deadline as failed("orphaned")
func (j *Janitor) Sweep(ctx context.Context) error {
	flagged, err := j.scanRepo.FlagOrphans(ctx, j.deadline)
	if err != nil {
		return err
	}
	if flagged > 0 {
		j.logger.WithField("flagged", flagged).Warn("Flagged orphaned scans")
	}
	return nil
}
