package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// Export formats: stable wire names for the HTTP layer.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Export renders raw history as a downloadable document. An empty podID
// exports every pod from the shared log; otherwise the pod's own shard
// is used. Unknown formats return ErrUnsupportedFormat.
func (s *Store) Export(podID, format string, startEpoch, endEpoch int64) ([]byte, error) {
	opts := ReadOptions{StartEpoch: startEpoch, EndEpoch: endEpoch}

	var (
		records []models.MetricRecord
		err     error
	)
	if podID == "" {
		records, err = s.Read(opts)
	} else {
		records, err = s.ReadPod(podID, opts)
	}
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		if records == nil {
			records = []models.MetricRecord{}
		}
		return json.MarshalIndent(records, "", "  ")
	case FormatCSV:
		return exportCSV(records)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func exportCSV(records []models.MetricRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"timestamp", "epoch", "pod_id", "name", "status",
		"cpu_percent", "memory_percent", "gpu_percent", "gpu_memory_percent",
		"cost_per_hr", "uptime_seconds",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, rec := range records {
		row := []string{
			rec.Timestamp,
			strconv.FormatInt(rec.Epoch, 10),
			rec.PodID,
			rec.Name,
			string(rec.Status),
			formatFloat(rec.CPUPercent),
			formatFloat(rec.MemoryPercent),
			formatFloat(rec.GPUPercent),
			formatFloat(rec.GPUMemoryPercent),
			formatFloat(rec.CostPerHr),
			strconv.FormatInt(rec.UptimeSeconds, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
