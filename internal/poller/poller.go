// Package poller talks to the RunPod API: the GraphQL endpoint for pod
// listings and lifecycle mutations, with a REST fallback for resume
// since the GraphQL resume path is flaky on some hosts.
package poller

import (
	"context"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// Poller is what the monitor loop needs from the provider API.
type Poller interface {
	FetchPods(ctx context.Context) ([]models.PodSnapshot, error)
	StopPod(ctx context.Context, podID string) error
	ResumePod(ctx context.Context, podID string) error
}
