package simulator

import (
	"math/rand"
	"sync"
	"time"
)

// Pattern shapes a simulated pod's utilization over time.
type Pattern string

const (
	// PatternIdle hovers near zero, enough to trip idle detection.
	PatternIdle Pattern = "idle"
	// PatternBusy stays well above any sane idle threshold.
	PatternBusy Pattern = "busy"
	// PatternFrozen repeats the exact same reading every poll, like a
	// hung metrics agent.
	PatternFrozen Pattern = "frozen"
)

// PodSim is one fake pod with a utilization pattern.
type PodSim struct {
	mu        sync.Mutex
	ID        string
	Name      string
	Status    string
	CostPerHr float64
	GPUCount  int
	pattern   Pattern
	startedAt time.Time

	frozenCPU float64
	frozenGPU float64
	frozenMem float64
}

func NewPodSim(id, name string, pattern Pattern) *PodSim {
	return &PodSim{
		ID:        id,
		Name:      name,
		Status:    "RUNNING",
		CostPerHr: 0.2 + rand.Float64()*2,
		GPUCount:  1,
		pattern:   pattern,
		startedAt: time.Now(),
		frozenCPU: 40 + rand.Float64()*20,
		frozenGPU: 50 + rand.Float64()*30,
		frozenMem: 30 + rand.Float64()*20,
	}
}

// Sample returns the current utilization reading.
func (p *PodSim) Sample() (cpu, gpu, mem float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.pattern {
	case PatternBusy:
		return 60 + rand.Float64()*35, 70 + rand.Float64()*25, 50 + rand.Float64()*30
	case PatternFrozen:
		return p.frozenCPU, p.frozenGPU, p.frozenMem
	default:
		return rand.Float64() * 0.9, 0, rand.Float64() * 0.5
	}
}

func (p *PodSim) Uptime() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Status != "RUNNING" {
		return 0
	}
	return int64(time.Since(p.startedAt).Seconds())
}

func (p *PodSim) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = "STOPPED"
}

func (p *PodSim) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = "RUNNING"
	p.startedAt = time.Now()
}

func (p *PodSim) CurrentStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Status
}

// SetPattern swaps the utilization pattern at runtime.
func (p *PodSim) SetPattern(pattern Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pattern = pattern
}
