// Package resilience guards the RunPod API client against a flapping
// upstream: repeated failures open the breaker so a dead API is noticed
// in one cheap check instead of a timeout per pod.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	halfOpenMax int

	mu            sync.RWMutex
	state         State
	failures      int
	successes     int
	lastFailTime  time.Time
	onStateChange func(name string, from, to State)
}

type Options struct {
	Name          string
	MaxFailures   int
	Cooldown      time.Duration
	HalfOpenMax   int
	OnStateChange func(name string, from, to State)
}

func New(opts Options) *CircuitBreaker {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:          opts.Name,
		maxFailures:   opts.MaxFailures,
		cooldown:      opts.Cooldown,
		halfOpenMax:   opts.HalfOpenMax,
		state:         StateClosed,
		onStateChange: opts.OnStateChange,
	}
}

// Execute runs fn unless the breaker is open. After the cooldown one
// probe call is allowed through; enough probe successes close the
// breaker again, a probe failure reopens it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) > cb.cooldown {
			cb.transition(StateHalfOpen)
			return true
		}
	}
	return false
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailTime = time.Now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}
