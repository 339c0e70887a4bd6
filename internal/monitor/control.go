package monitor

import (
	"context"
	"errors"
)

// ErrPodExcluded rejects manual stops of pods on the exclusion list.
var ErrPodExcluded = errors.New("pod is excluded from stop actions")

// StopPod executes an operator-requested stop, bypassing the idle
// checks but not the exclusion list.
func (m *Monitor) StopPod(ctx context.Context, podID, traceID string) error {
	name := podID
	if entry, ok := m.tracker.Entry(podID); ok {
		name = entry.PodName
	}
	if m.tracker.Excluded(podID, name) {
		return ErrPodExcluded
	}

	if err := m.poller.StopPod(ctx, podID); err != nil {
		m.publisher.WithTraceID(traceID).StopFailed(podID, name, err)
		return err
	}

	costPerHr := 0.0
	if m.costs != nil {
		if entry, ok, _ := m.costs.Get(podID); ok {
			costPerHr = entry.CostPerHr
		}
	}
	m.publisher.WithTraceID(traceID).StopExecuted(podID, name, costPerHr)
	m.tracker.ResetCounter(podID)
	return nil
}

// ResumePod restarts a stopped pod and clears any leftover idle streak
// so the fresh session gets a full idle window before the next stop.
func (m *Monitor) ResumePod(ctx context.Context, podID string) error {
	if err := m.poller.ResumePod(ctx, podID); err != nil {
		return err
	}
	m.tracker.ResetCounter(podID)
	return nil
}
