package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

func TestSweep_RemovesExpiredRecords(t *testing.T) {
	store := newTestStore(t)
	fixNow(t, store, 100*3600)

	// Two old records and one fresh one, in both the shared log and
	// the pod's own shard.
	for _, epoch := range []int64{3600, 7200, 99 * 3600} {
		require.NoError(t, store.Append(record("pod-a", epoch, 1)))
		require.NoError(t, store.AppendShard(record("pod-a", epoch, 1)))
	}

	res, err := store.Sweep(models.RetentionPolicy{Value: 24, Unit: models.RetentionHours})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SharedRemoved)
	assert.Equal(t, 2, res.ShardsRemoved)
	assert.Zero(t, res.PodsDropped)

	shared, err := store.Read(ReadOptions{})
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, int64(99*3600), shared[0].Epoch)

	shard, err := store.ReadPod("pod-a", ReadOptions{})
	require.NoError(t, err)
	require.Len(t, shard, 1)
}

func TestSweep_CountsEmptiedPods(t *testing.T) {
	store := newTestStore(t)
	fixNow(t, store, 100*3600)

	require.NoError(t, store.AppendShard(record("pod-old", 3600, 1)))
	require.NoError(t, store.AppendShard(record("pod-new", 99*3600, 1)))

	res, err := store.Sweep(models.RetentionPolicy{Value: 24, Unit: models.RetentionHours})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ShardsRemoved)
	assert.Equal(t, 1, res.PodsDropped)

	// The emptied pod's shard directory is gone entirely.
	pods, err := store.Pods()
	require.NoError(t, err)
	assert.Equal(t, []string{"pod-new"}, pods)
}

func TestSweep_ForeverIsNoop(t *testing.T) {
	store := newTestStore(t)
	fixNow(t, store, 100*3600)
	require.NoError(t, store.Append(record("pod-a", 1, 1)))

	for _, policy := range []models.RetentionPolicy{
		{Unit: models.RetentionForever},
		{Value: 999, Unit: models.RetentionYears},
	} {
		res, err := store.Sweep(policy)
		require.NoError(t, err)
		assert.Zero(t, res.SharedRemoved)
	}

	all, err := store.Read(ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSweep_ConcurrentAppendsSurvive(t *testing.T) {
	store := newTestStore(t)
	fixNow(t, store, 100*3600)
	policy := models.RetentionPolicy{Value: 24, Unit: models.RetentionHours}

	const fresh = 300
	done := make(chan error, 1)
	go func() {
		for i := int64(0); i < fresh; i++ {
			if err := store.Append(record("pod-a", 99*3600+i, 1)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	// Each round seeds an expired record so the sweep actually rewrites
	// the log while the appender is running.
	for i := 0; i < 20; i++ {
		require.NoError(t, store.Append(record("pod-old", int64(i+1), 1)))
		_, err := store.Sweep(policy)
		require.NoError(t, err)
	}
	require.NoError(t, <-done)

	kept, err := store.Read(ReadOptions{PodID: "pod-a"})
	require.NoError(t, err)
	assert.Len(t, kept, fresh)
}

func TestSweep_NothingExpired(t *testing.T) {
	store := newTestStore(t)
	fixNow(t, store, 10*3600)
	require.NoError(t, store.Append(record("pod-a", 9*3600, 1)))

	res, err := store.Sweep(models.RetentionPolicy{Value: 24, Unit: models.RetentionHours})
	require.NoError(t, err)
	assert.Zero(t, res.SharedRemoved)
	assert.Zero(t, res.ShardsRemoved)
}
