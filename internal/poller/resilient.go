package poller

import (
	"context"
	"time"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/resilience"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// ResilientPoller wraps a Poller with retries and a circuit breaker so
// one flaky poll cycle neither spams the API nor kills the monitor.
type ResilientPoller struct {
	inner    Poller
	breaker  *resilience.CircuitBreaker
	attempts int
}

func NewResilientPoller(inner Poller, maxFailures int, cooldown time.Duration, attempts int) *ResilientPoller {
	if attempts <= 0 {
		attempts = 3
	}
	return &ResilientPoller{
		inner: inner,
		breaker: resilience.New(resilience.Options{
			Name:        "runpod-api",
			MaxFailures: maxFailures,
			Cooldown:    cooldown,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
			},
		}),
		attempts: attempts,
	}
}

func (p *ResilientPoller) FetchPods(ctx context.Context) ([]models.PodSnapshot, error) {
	var pods []models.PodSnapshot
	err := p.withRetry(ctx, func() error {
		var err error
		pods, err = p.inner.FetchPods(ctx)
		return err
	})
	return pods, err
}

// StopPod is not retried: a stop that timed out may still have landed,
// and the next poll cycle will see the pod stopped anyway.
func (p *ResilientPoller) StopPod(ctx context.Context, podID string) error {
	return p.breaker.Execute(func() error {
		return p.inner.StopPod(ctx, podID)
	})
}

func (p *ResilientPoller) ResumePod(ctx context.Context, podID string) error {
	return p.breaker.Execute(func() error {
		return p.inner.ResumePod(ctx, podID)
	})
}

// BreakerState exposes the breaker for health reporting.
func (p *ResilientPoller) BreakerState() resilience.State {
	return p.breaker.State()
}

func (p *ResilientPoller) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = p.breaker.Execute(fn)
		if err == nil {
			return nil
		}
		if err == resilience.ErrCircuitOpen {
			return err
		}
		if attempt < p.attempts {
			backoff := time.Duration(attempt) * time.Second
			logger.Warnf("API call failed (attempt %d/%d), retrying in %s: %v", attempt, p.attempts, backoff, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return err
}
