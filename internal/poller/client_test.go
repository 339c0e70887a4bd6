package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

const podsResponse = `{
  "data": {
    "myself": {
      "pods": [
        {
          "id": "pod-running",
          "name": "training-box",
          "desiredStatus": "RUNNING",
          "imageName": "runpod/pytorch",
          "costPerHr": 0.74,
          "runtime": {
            "uptimeInSeconds": 5400,
            "container": {"cpuPercent": 12.5, "memoryPercent": 40.0},
            "gpus": [
              {"id": "gpu-0", "gpuUtilPercent": 90.0, "memoryUtilPercent": 60.0},
              {"id": "gpu-1", "gpuUtilPercent": 10.0, "memoryUtilPercent": 20.0}
            ]
          }
        },
        {
          "id": "pod-stopped",
          "name": "idle-box",
          "desiredStatus": "EXITED",
          "imageName": "runpod/base",
          "costPerHr": 0.2,
          "runtime": null
        }
      ]
    }
  }
}`

func newGraphQLServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL, srv.URL, 5*time.Second)
}

func TestFetchPods_ParsesSnapshots(t *testing.T) {
	client := newGraphQLServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "GetAllPodsWithMetrics")

		fmt.Fprint(w, podsResponse)
	})

	pods, err := client.FetchPods(context.Background())
	require.NoError(t, err)
	require.Len(t, pods, 2)

	running := pods[0]
	assert.Equal(t, "pod-running", running.ID)
	assert.Equal(t, models.StatusRunning, running.Status)
	assert.Equal(t, 12.5, running.CPUPercent)
	assert.Equal(t, int64(5400), running.UptimeSeconds)
	// GPU utilization averages across all GPUs.
	assert.Equal(t, 2, running.GPUCount)
	assert.Equal(t, 50.0, running.GPUPercent)
	assert.Equal(t, 40.0, running.GPUMemoryPercent)

	// A nil runtime reads as zero utilization, not an error.
	stopped := pods[1]
	assert.Equal(t, models.StatusExited, stopped.Status)
	assert.Zero(t, stopped.CPUPercent)
	assert.Zero(t, stopped.GPUCount)
}

func TestFetchPods_GraphQLErrors(t *testing.T) {
	client := newGraphQLServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors": [{"message": "unauthorized"}]}`)
	})

	_, err := client.FetchPods(context.Background())
	require.ErrorIs(t, err, ErrGraphQL)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestFetchPods_HTTPError(t *testing.T) {
	client := newGraphQLServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.FetchPods(context.Background())
	assert.ErrorIs(t, err, ErrAPIUnavailable)
}

func TestStopPod(t *testing.T) {
	var gotPodID string
	client := newGraphQLServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Contains(t, req.Query, "podStop")

		vars := req.Variables.(map[string]interface{})
		input := vars["input"].(map[string]interface{})
		gotPodID = input["podId"].(string)

		fmt.Fprint(w, `{"data": {"podStop": {"id": "pod-a", "desiredStatus": "EXITED"}}}`)
	})

	require.NoError(t, client.StopPod(context.Background(), "pod-a"))
	assert.Equal(t, "pod-a", gotPodID)
}

func TestStopPod_NullResult(t *testing.T) {
	client := newGraphQLServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"podStop": null}}`)
	})

	err := client.StopPod(context.Background(), "pod-a")
	assert.ErrorIs(t, err, ErrGraphQL)
}

func TestResumePod_GraphQLSucceeds(t *testing.T) {
	restCalled := false
	client := newGraphQLServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/pods/") {
			restCalled = true
			w.WriteHeader(http.StatusOK)
			return
		}
		fmt.Fprint(w, `{"data": {"podResume": {"id": "pod-a", "desiredStatus": "RUNNING"}}}`)
	})

	require.NoError(t, client.ResumePod(context.Background(), "pod-a"))
	assert.False(t, restCalled)
}

func TestResumePod_FallsBackToREST(t *testing.T) {
	var restPath string
	client := newGraphQLServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/pods/") {
			restPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
			return
		}
		fmt.Fprint(w, `{"errors": [{"message": "There are no longer any instances available"}]}`)
	})

	require.NoError(t, client.ResumePod(context.Background(), "pod-a"))
	assert.Equal(t, "/pods/pod-a/start", restPath)
}

func TestResumePod_RESTErrorTranslation(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"no vcpu", http.StatusInternalServerError,
			`{"error": "not enough free vcpu on host machine"}`, "no free vCPUs"},
		{"no memory", http.StatusInternalServerError,
			`{"error": "not enough free memory on host machine"}`, "no free memory"},
		{"bad id", http.StatusBadRequest, "", "invalid pod id"},
		{"bad key", http.StatusUnauthorized, "", "check the API key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newGraphQLServer(t, func(w http.ResponseWriter, r *http.Request) {
				if strings.HasPrefix(r.URL.Path, "/pods/") {
					w.WriteHeader(tc.status)
					fmt.Fprint(w, tc.body)
					return
				}
				fmt.Fprint(w, `{"errors": [{"message": "resume refused"}]}`)
			})

			err := client.ResumePod(context.Background(), "pod-a")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
