package storage

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

func TestExport_CSV(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AppendShard(record("pod-a", 100, 42.5)))
	require.NoError(t, store.AppendShard(record("pod-a", 200, 7)))

	out, err := store.Export("pod-a", FormatCSV, 0, 0)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		"timestamp,epoch,pod_id,name,status,cpu_percent,memory_percent,gpu_percent,gpu_memory_percent,cost_per_hr,uptime_seconds",
		lines[0])
	assert.Contains(t, lines[1], ",100,pod-a,")
	assert.Contains(t, lines[1], "42.50")
}

func TestExport_JSON(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Append(record("pod-a", 100, 1)))
	require.NoError(t, store.Append(record("pod-b", 200, 2)))

	out, err := store.Export("", FormatJSON, 0, 0)
	require.NoError(t, err)

	var records []models.MetricRecord
	require.NoError(t, json.Unmarshal(out, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "pod-b", records[1].PodID)
}

func TestExport_JSONEmptyIsArray(t *testing.T) {
	store := newTestStore(t)

	out, err := store.Export("missing", FormatJSON, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestExport_EpochRange(t *testing.T) {
	store := newTestStore(t)
	for _, epoch := range []int64{100, 200, 300} {
		require.NoError(t, store.AppendShard(record("pod-a", epoch, 1)))
	}

	out, err := store.Export("pod-a", FormatJSON, 150, 250)
	require.NoError(t, err)

	var records []models.MetricRecord
	require.NoError(t, json.Unmarshal(out, &records))
	require.Len(t, records, 1)
	assert.Equal(t, int64(200), records[0].Epoch)
}

func TestExport_UnsupportedFormat(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Export("pod-a", "xml", 0, 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
