// Package pipeline is the single write path for metric samples. Every
// sample flows through the same ordered stages: pre-write hooks that
// may mutate or reject it, the durable append, then post-write hooks
// that fan the sample out to derived state. Nothing updates counters,
// shards, or events except through this path.
package pipeline

import (
	"fmt"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

// StartHook runs once when the pipeline starts, before any sample is
// written. A failing start hook aborts startup.
type StartHook interface {
	Name() string
	OnStart() error
}

// PreWriteHook runs before the durable append. It may mutate the record
// in place; returning an error rejects the sample and nothing persists.
type PreWriteHook interface {
	Name() string
	BeforeWrite(rec *models.MetricRecord) error
}

// PostWriteHook runs after the sample is durably in the shared log. A
// failing post hook is logged and skipped; it never unwinds the write.
type PostWriteHook interface {
	Name() string
	AfterWrite(rec models.MetricRecord) error
}

// MetricWriter owns the hook chain. Hooks are fixed at construction so
// every sample in a process lifetime sees the same stages in the same
// order.
type MetricWriter struct {
	store *storage.Store
	start []StartHook
	pre   []PreWriteHook
	post  []PostWriteHook
}

// Option configures a MetricWriter at construction.
type Option func(*MetricWriter)

// WithStartHooks appends start hooks in registration order.
func WithStartHooks(hooks ...StartHook) Option {
	return func(w *MetricWriter) { w.start = append(w.start, hooks...) }
}

// WithPreWriteHooks appends pre-write hooks in registration order.
func WithPreWriteHooks(hooks ...PreWriteHook) Option {
	return func(w *MetricWriter) { w.pre = append(w.pre, hooks...) }
}

// WithPostWriteHooks appends post-write hooks in registration order.
func WithPostWriteHooks(hooks ...PostWriteHook) Option {
	return func(w *MetricWriter) { w.post = append(w.post, hooks...) }
}

// NewMetricWriter builds the write path over the given store.
func NewMetricWriter(store *storage.Store, opts ...Option) *MetricWriter {
	w := &MetricWriter{store: store}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the start hooks in registration order.
func (w *MetricWriter) Start() error {
	for _, h := range w.start {
		if err := h.OnStart(); err != nil {
			return fmt.Errorf("start hook %s: %w", h.Name(), err)
		}
	}
	return nil
}

// Write pushes one sample through the full pipeline. On a pre-write
// rejection the sample is dropped whole; on an append failure nothing
// downstream runs, so derived state never gets ahead of the log.
func (w *MetricWriter) Write(rec models.MetricRecord) error {
	for _, h := range w.pre {
		if err := h.BeforeWrite(&rec); err != nil {
			return fmt.Errorf("rejected by %s: %w", h.Name(), err)
		}
	}

	if err := w.store.Append(rec); err != nil {
		return err
	}

	for _, h := range w.post {
		if err := h.AfterWrite(rec); err != nil {
			logger.WithPod(rec.PodID).WithError(err).Warnf("Post-write hook %s failed", h.Name())
		}
	}
	return nil
}
