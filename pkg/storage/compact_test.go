package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixNow(t *testing.T, store *Store, epoch int64) {
	t.Helper()
	store.nowFn = func() time.Time { return time.Unix(epoch, 0) }
}

func TestCompact_BucketsAndAggregates(t *testing.T) {
	store := newTestStore(t)
	// Two full 30-minute windows starting at epoch 0 and 1800.
	for _, epoch := range []int64{60, 600, 1200, 1860, 2400} {
		require.NoError(t, store.AppendShard(record("pod-a", epoch, float64(epoch))))
	}
	fixNow(t, store, 10_000)

	windows, samples, err := store.Compact("pod-a", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, windows)
	assert.Equal(t, 5, samples)

	rollups, err := store.ReadRollups("pod-a", 30, 0, 0)
	require.NoError(t, err)
	require.Len(t, rollups, 2)
	assert.Equal(t, int64(0), rollups[0].WindowStartEpoch)
	assert.Equal(t, int64(1800), rollups[0].WindowEndEpoch)
	assert.Equal(t, 3, rollups[0].MetricsCount)
	assert.Equal(t, int64(1800), rollups[1].WindowStartEpoch)
	assert.Equal(t, 2, rollups[1].MetricsCount)
}

func TestCompact_IdempotentRerun(t *testing.T) {
	store := newTestStore(t)
	for _, epoch := range []int64{60, 600, 1200} {
		require.NoError(t, store.AppendShard(record("pod-a", epoch, 1)))
	}
	fixNow(t, store, 10_000)

	windows, _, err := store.Compact("pod-a", 30)
	require.NoError(t, err)
	require.Equal(t, 1, windows)

	// No new raw data: the rerun must emit nothing.
	windows, samples, err := store.Compact("pod-a", 30)
	require.NoError(t, err)
	assert.Zero(t, windows)
	assert.Zero(t, samples)

	rollups, err := store.ReadRollups("pod-a", 30, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rollups, 1)
}

func TestCompact_SkipsInProgressWindow(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AppendShard(record("pod-a", 1900, 1)))
	// Now is inside the [1800, 3600) window and the window is not yet
	// two intervals stale, so nothing is emitted.
	fixNow(t, store, 2000)

	windows, _, err := store.Compact("pod-a", 30)
	require.NoError(t, err)
	assert.Zero(t, windows)

	// Once the window has fully elapsed it compacts.
	fixNow(t, store, 4000)
	windows, _, err = store.Compact("pod-a", 30)
	require.NoError(t, err)
	assert.Equal(t, 1, windows)
}

func TestCompact_SkipsFutureWindow(t *testing.T) {
	store := newTestStore(t)
	// A record with a future epoch (clock skew) lands in a window that
	// has not started yet; it must wait.
	require.NoError(t, store.AppendShard(record("pod-a", 10_000, 1)))
	fixNow(t, store, 2000)

	windows, _, err := store.Compact("pod-a", 30)
	require.NoError(t, err)
	assert.Zero(t, windows)
}

func TestCompact_UnsupportedInterval(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Compact("pod-a", 45)
	assert.ErrorIs(t, err, ErrUnsupportedInterval)
}

func TestCompact_RollingCap(t *testing.T) {
	store := newTestStore(t)
	store.SetRollupCapDays(1) // 24 hourly windows

	// 30 one-hour windows worth of samples.
	for i := int64(0); i < 30; i++ {
		require.NoError(t, store.AppendShard(record("pod-a", i*3600+10, 1)))
	}
	fixNow(t, store, 40*3600)

	windows, _, err := store.Compact("pod-a", 60)
	require.NoError(t, err)
	assert.Equal(t, 30, windows)

	rollups, err := store.ReadRollups("pod-a", 60, 0, 0)
	require.NoError(t, err)
	require.Len(t, rollups, 24)
	// The oldest windows are the ones trimmed.
	assert.Equal(t, int64(6*3600), rollups[0].WindowStartEpoch)
}

func TestAutoCompact_Threshold(t *testing.T) {
	store := newTestStore(t)
	fixNow(t, store, 100_000)
	for _, epoch := range []int64{60, 600, 1200} {
		require.NoError(t, store.AppendShard(record("pod-a", epoch, 1)))
	}

	// Below threshold: nothing happens.
	require.NoError(t, store.AutoCompact("pod-a", 10))
	rollups, err := store.ReadRollups("pod-a", 30, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rollups)

	// At threshold: both resolutions compact.
	require.NoError(t, store.AutoCompact("pod-a", 3))
	rollups, err = store.ReadRollups("pod-a", 30, 0, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, rollups)
	hourly, err := store.ReadRollups("pod-a", 60, 0, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, hourly)
}

func TestCleanupRaw(t *testing.T) {
	store := newTestStore(t)
	now := int64(100 * 3600)
	fixNow(t, store, now)

	require.NoError(t, store.AppendShard(record("pod-a", now-50*3600, 1)))
	require.NoError(t, store.AppendShard(record("pod-a", now-3600, 2)))

	removed, err := store.CleanupRaw("pod-a", 48)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := store.ReadPod("pod-a", ReadOptions{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, now-3600, remaining[0].Epoch)
}

func TestCleanupRaw_ConcurrentAppendsSurvive(t *testing.T) {
	store := newTestStore(t)
	now := int64(100 * 3600)
	fixNow(t, store, now)

	const fresh = 300
	done := make(chan error, 1)
	go func() {
		for i := int64(0); i < fresh; i++ {
			if err := store.AppendShard(record("pod-a", now-1800+i, 1)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, store.AppendShard(record("pod-a", int64(i+1), 1)))
		_, err := store.CleanupRaw("pod-a", 24)
		require.NoError(t, err)
	}
	require.NoError(t, <-done)

	remaining, err := store.ReadPod("pod-a", ReadOptions{StartEpoch: now - 1800})
	require.NoError(t, err)
	assert.Len(t, remaining, fresh)
}
