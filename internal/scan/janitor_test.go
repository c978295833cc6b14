package scan

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opportunity-scanner/internal/logging"
)

type mockFlagger struct {
	flagged int32
	err     error
}

func (m *mockFlagger) FlagOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	atomic.AddInt32(&m.flagged, 1)
	return 1, nil
}

func TestJanitorSweepsOnInterval(t *testing.T) {
	flagger := &mockFlagger{}
	j := NewJanitor(flagger, 15*time.Minute, 20*time.Millisecond,
		logging.NewLogger(logging.LevelError, logging.FormatJSON))

	require.NoError(t, j.Start(context.Background()))

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&flagger.flagged) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, j.Stop(ctx))

	assert.GreaterOrEqual(t, atomic.LoadInt32(&flagger.flagged), int32(2))
}

func TestJanitorDoubleStart(t *testing.T) {
	j := NewJanitor(&mockFlagger{}, 15*time.Minute, time.Minute,
		logging.NewLogger(logging.LevelError, logging.FormatJSON))

	require.NoError(t, j.Start(context.Background()))
	assert.Error(t, j.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, j.Stop(ctx))
}

func TestJanitorSweepDirect(t *testing.T) {
	flagger := &mockFlagger{}
	j := NewJanitor(flagger, 15*time.Minute, time.Minute,
		logging.NewLogger(logging.LevelError, logging.FormatJSON))

	require.NoError(t, j.Sweep(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&flagger.flagged))
}
