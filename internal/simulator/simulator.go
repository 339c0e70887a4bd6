// Package simulator is a local stand-in for the RunPod API. It speaks
// just enough of the GraphQL schema for the monitor to poll it, so
// idle detection can be exercised end to end without real pods.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
)

type Config struct {
	Port int
}

type Simulator struct {
	config     Config
	pods       map[string]*PodSim
	mu         sync.RWMutex
	httpServer *http.Server
}

func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = 9000
	}

	s := &Simulator{
		config: cfg,
		pods:   make(map[string]*PodSim),
	}
	// A default fleet covering the interesting cases.
	s.AddPod(NewPodSim("sim-idle-1", "idle-worker", PatternIdle))
	s.AddPod(NewPodSim("sim-busy-1", "training-run", PatternBusy))
	s.AddPod(NewPodSim("sim-frozen-1", "hung-agent", PatternFrozen))
	return s
}

func (s *Simulator) AddPod(pod *PodSim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pods[pod.ID] = pod
}

func (s *Simulator) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", s.graphqlHandler)
	mux.HandleFunc("/pods/", s.restHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Infof("Simulator listening on %s", addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Simulator server error: %v", err)
		}
	}()
	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Simulator) graphqlHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query"`
		Variables struct {
			Input struct {
				PodID string `json:"podId"`
			} `json:"input"`
		} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch {
	case strings.Contains(req.Query, "podStop"):
		s.handleMutation(w, req.Variables.Input.PodID, "podStop", (*PodSim).Stop)
	case strings.Contains(req.Query, "podResume"):
		s.handleMutation(w, req.Variables.Input.PodID, "podResume", (*PodSim).Resume)
	default:
		s.handlePodsQuery(w)
	}
}

func (s *Simulator) handlePodsQuery(w http.ResponseWriter) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pods := make([]map[string]interface{}, 0, len(s.pods))
	for _, pod := range s.pods {
		entry := map[string]interface{}{
			"id":            pod.ID,
			"name":          pod.Name,
			"desiredStatus": pod.CurrentStatus(),
			"imageName":     "runpod/pytorch:latest",
			"costPerHr":     pod.CostPerHr,
		}
		if pod.CurrentStatus() == "RUNNING" {
			cpu, gpu, mem := pod.Sample()
			entry["runtime"] = map[string]interface{}{
				"uptimeInSeconds": pod.Uptime(),
				"container": map[string]interface{}{
					"cpuPercent":    cpu,
					"memoryPercent": mem,
				},
				"gpus": []map[string]interface{}{{
					"id":                "GPU-0",
					"gpuUtilPercent":    gpu,
					"memoryUtilPercent": gpu * 0.8,
				}},
			}
		}
		pods = append(pods, entry)
	}

	writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{
			"myself": map[string]interface{}{"pods": pods},
		},
	})
}

func (s *Simulator) handleMutation(w http.ResponseWriter, podID, field string, action func(*PodSim)) {
	s.mu.RLock()
	pod, ok := s.pods[podID]
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, map[string]interface{}{
			"errors": []map[string]string{{"message": "pod not found"}},
		})
		return
	}

	action(pod)
	logger.Infof("Simulator: %s on %s, status now %s", field, podID, pod.CurrentStatus())
	writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{
			field: map[string]interface{}{
				"id":            pod.ID,
				"desiredStatus": pod.CurrentStatus(),
			},
		},
	})
}

// restHandler implements POST /pods/{id}/start, the REST resume
// fallback path.
func (s *Simulator) restHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "start" || r.Method != http.MethodPost {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	s.mu.RLock()
	pod, ok := s.pods[parts[1]]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "invalid pod id", http.StatusBadRequest)
		return
	}

	pod.Resume()
	writeJSON(w, map[string]string{"status": "started"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
