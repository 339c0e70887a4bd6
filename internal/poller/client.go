package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

var (
	ErrAPIUnavailable = errors.New("runpod api unavailable")
	ErrGraphQL        = errors.New("graphql error")
)

const podsQuery = `
query GetAllPodsWithMetrics {
  myself {
    pods {
      id
      name
      desiredStatus
      imageName
      costPerHr
      runtime {
        uptimeInSeconds
        container {
          cpuPercent
          memoryPercent
        }
        gpus {
          id
          gpuUtilPercent
          memoryUtilPercent
        }
      }
    }
  }
}`

const stopMutation = `
mutation PodStop($input: PodStopInput!) {
  podStop(input: $input) {
    id
    desiredStatus
  }
}`

const resumeMutation = `
mutation PodResume($input: PodResumeInput!) {
  podResume(input: $input) {
    id
    desiredStatus
  }
}`

// Client is the concrete RunPod API client.
type Client struct {
	apiKey     string
	graphqlURL string
	restURL    string
	httpClient *http.Client
}

func NewClient(apiKey, graphqlURL, restURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		graphqlURL: graphqlURL,
		restURL:    strings.TrimSuffix(restURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type graphqlRequest struct {
	Query     string      `json:"query"`
	Variables interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// apiPod mirrors the GraphQL response shape. A stopped pod has a nil
// runtime; utilization then reads zero.
type apiPod struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	DesiredStatus string  `json:"desiredStatus"`
	ImageName     string  `json:"imageName"`
	CostPerHr     float64 `json:"costPerHr"`
	Runtime       *struct {
		UptimeInSeconds int64 `json:"uptimeInSeconds"`
		Container       *struct {
			CPUPercent    float64 `json:"cpuPercent"`
			MemoryPercent float64 `json:"memoryPercent"`
		} `json:"container"`
		GPUs []struct {
			ID                string  `json:"id"`
			GPUUtilPercent    float64 `json:"gpuUtilPercent"`
			MemoryUtilPercent float64 `json:"memoryUtilPercent"`
		} `json:"gpus"`
	} `json:"runtime"`
}

// FetchPods lists every pod on the account with current utilization.
func (c *Client) FetchPods(ctx context.Context) ([]models.PodSnapshot, error) {
	var resp struct {
		Myself struct {
			Pods []apiPod `json:"pods"`
		} `json:"myself"`
	}
	if err := c.execute(ctx, podsQuery, nil, &resp); err != nil {
		return nil, err
	}

	snapshots := make([]models.PodSnapshot, 0, len(resp.Myself.Pods))
	for _, pod := range resp.Myself.Pods {
		snapshots = append(snapshots, pod.toSnapshot())
	}
	return snapshots, nil
}

func (p apiPod) toSnapshot() models.PodSnapshot {
	snap := models.PodSnapshot{
		ID:        p.ID,
		Name:      p.Name,
		Status:    models.ParsePodStatus(p.DesiredStatus),
		ImageName: p.ImageName,
		CostPerHr: p.CostPerHr,
	}
	if p.Runtime == nil {
		return snap
	}

	snap.UptimeSeconds = p.Runtime.UptimeInSeconds
	if p.Runtime.Container != nil {
		snap.CPUPercent = p.Runtime.Container.CPUPercent
		snap.MemoryPercent = p.Runtime.Container.MemoryPercent
	}
	if n := len(p.Runtime.GPUs); n > 0 {
		var util, mem float64
		for _, gpu := range p.Runtime.GPUs {
			util += gpu.GPUUtilPercent
			mem += gpu.MemoryUtilPercent
		}
		snap.GPUCount = n
		snap.GPUPercent = util / float64(n)
		snap.GPUMemoryPercent = mem / float64(n)
	}
	return snap
}

// StopPod requests a stop via the podStop mutation.
func (c *Client) StopPod(ctx context.Context, podID string) error {
	var resp struct {
		PodStop *struct {
			ID            string `json:"id"`
			DesiredStatus string `json:"desiredStatus"`
		} `json:"podStop"`
	}
	vars := map[string]interface{}{"input": map[string]string{"podId": podID}}
	if err := c.execute(ctx, stopMutation, vars, &resp); err != nil {
		return err
	}
	if resp.PodStop == nil {
		return fmt.Errorf("%w: podStop returned no pod", ErrGraphQL)
	}
	logger.WithPod(podID).Infof("Pod stop requested, status now %s", resp.PodStop.DesiredStatus)
	return nil
}

// ResumePod tries the podResume mutation and falls back to the REST
// start endpoint when GraphQL refuses, matching what the RunPod console
// does.
func (c *Client) ResumePod(ctx context.Context, podID string) error {
	var resp struct {
		PodResume *struct {
			ID            string `json:"id"`
			DesiredStatus string `json:"desiredStatus"`
		} `json:"podResume"`
	}
	vars := map[string]interface{}{"input": map[string]string{"podId": podID}}
	err := c.execute(ctx, resumeMutation, vars, &resp)
	if err == nil && resp.PodResume != nil {
		logger.WithPod(podID).Infof("Pod resume requested, status now %s", resp.PodResume.DesiredStatus)
		return nil
	}

	logger.WithPod(podID).Debug("GraphQL resume failed, trying REST start")
	return c.startPodREST(ctx, podID)
}

// startPodREST hits POST /pods/{id}/start, translating the common 500
// capacity errors into readable messages.
func (c *Client) startPodREST(ctx context.Context, podID string) error {
	url := fmt.Sprintf("%s/pods/%s/start", c.restURL, podID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPIUnavailable, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return fmt.Errorf("invalid pod id %q", podID)
	case http.StatusUnauthorized:
		return errors.New("unauthorized: check the API key")
	case http.StatusInternalServerError:
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			msg := strings.ToLower(payload.Error)
			if strings.Contains(msg, "not enough free vcpu") {
				return errors.New("cannot start pod: host machine has no free vCPUs")
			}
			if strings.Contains(msg, "not enough free memory") {
				return errors.New("cannot start pod: host machine has no free memory")
			}
			return fmt.Errorf("server error: %s", payload.Error)
		}
		return fmt.Errorf("server error: %s", body)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

func (c *Client) execute(ctx context.Context, query string, variables interface{}, out interface{}) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPIUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("%w: status %d: %s", ErrAPIUnavailable, resp.StatusCode, body)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrAPIUnavailable, err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}
