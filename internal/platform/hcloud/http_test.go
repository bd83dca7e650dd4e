package hcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/hetznercloud/hcloud-go/v2/hcloud/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/alpine-cloud-images/internal/config"
)

// testServer mocks Hetzner Cloud API responses.
type testServer struct {
	server *httptest.Server
	mux    *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mux := http.NewServeMux()
	ts := &testServer{server: httptest.NewServer(mux), mux: mux}
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) realClient() *RealClient {
	return NewRealClient("test-token",
		WithHCloudClient(hcloud.NewClient(
			hcloud.WithToken("test-token"),
			hcloud.WithEndpoint(ts.server.URL),
			hcloud.WithPollOpts(hcloud.PollOpts{BackoffFunc: hcloud.ConstantBackoff(10 * time.Millisecond)}),
		)),
		WithTimeouts(&config.Timeouts{
			ServerCreate:      5 * time.Second,
			ServerIP:          time.Second,
			Delete:            5 * time.Second,
			SnapshotImport:    5 * time.Second,
			RetryMaxAttempts:  3,
			RetryInitialDelay: 10 * time.Millisecond,
		}),
	)
}

func (ts *testServer) handleFunc(pattern string, handler http.HandlerFunc) {
	ts.mux.HandleFunc(pattern, handler)
}

func jsonResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func rawResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = fmt.Fprint(w, body)
}

func errorResponse(w http.ResponseWriter, statusCode int, code string) {
	jsonResponse(w, statusCode, schema.ErrorResponse{
		Error: schema.Error{Code: code, Message: code},
	})
}

func TestRealClient_GetServerIP(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "build" {
			jsonResponse(w, http.StatusOK, schema.ServerListResponse{
				Servers: []schema.Server{{
					ID:   123,
					Name: "build",
					PublicNet: schema.ServerPublicNet{
						IPv4: schema.ServerPublicNetIPv4{IP: "203.0.113.42"},
					},
				}},
			})
			return
		}
		jsonResponse(w, http.StatusOK, schema.ServerListResponse{Servers: []schema.Server{}})
	})
	client := ts.realClient()

	ip, err := client.GetServerIP(context.Background(), "build")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.42", ip)

	_, err = client.GetServerIP(context.Background(), "missing")
	assert.ErrorContains(t, err, "server not found")
}

func TestRealClient_GetServerID(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "build" {
			jsonResponse(w, http.StatusOK, schema.ServerListResponse{Servers: []schema.Server{{ID: 456, Name: "build"}}})
			return
		}
		jsonResponse(w, http.StatusOK, schema.ServerListResponse{Servers: []schema.Server{}})
	})
	client := ts.realClient()

	id, err := client.GetServerID(context.Background(), "build")
	require.NoError(t, err)
	assert.Equal(t, "456", id)

	id, err = client.GetServerID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestRealClient_DeleteServer(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	var deleted atomic.Bool
	ts.handleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "build" {
			jsonResponse(w, http.StatusOK, schema.ServerListResponse{Servers: []schema.Server{{ID: 789, Name: "build"}}})
			return
		}
		jsonResponse(w, http.StatusOK, schema.ServerListResponse{Servers: []schema.Server{}})
	})
	ts.handleFunc("/servers/789", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		deleted.Store(true)
		jsonResponse(w, http.StatusOK, schema.ServerDeleteResponse{Action: schema.Action{ID: 1, Status: "success"}})
	})
	client := ts.realClient()

	require.NoError(t, client.DeleteServer(context.Background(), "build"))
	assert.True(t, deleted.Load())

	require.NoError(t, client.DeleteServer(context.Background(), "already-gone"))
}

func TestRealClient_SnapshotsByLabels_NewestFirst(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	var selector, imageType string
	ts.handleFunc("/images", func(w http.ResponseWriter, r *http.Request) {
		selector = r.URL.Query().Get("label_selector")
		imageType = r.URL.Query().Get("type")
		rawResponse(w, http.StatusOK, `{"images": [
			{"id": 1, "type": "snapshot", "status": "available", "created": "2024-01-01T00:00:00Z", "labels": {"revision": "0"}},
			{"id": 2, "type": "snapshot", "status": "available", "created": "2024-03-01T00:00:00Z", "labels": {"revision": "1"}}
		]}`)
	})
	client := ts.realClient()

	images, err := client.SnapshotsByLabels(context.Background(), map[string]string{"project": "p", "image_key": "k"})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, int64(2), images[0].ID)
	assert.Equal(t, "1", images[0].Labels["revision"])
	assert.Equal(t, "image_key=k,project=p", selector)
	assert.Equal(t, "snapshot", imageType)
}

func TestRealClient_DeleteImage(t *testing.T) {
	t.Parallel()

	t.Run("retries while locked", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		var calls atomic.Int32
		ts.handleFunc("/images/42", func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				errorResponse(w, http.StatusLocked, "locked")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		require.NoError(t, ts.realClient().DeleteImage(context.Background(), "42"))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("missing image", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.handleFunc("/images/42", func(w http.ResponseWriter, _ *http.Request) {
			errorResponse(w, http.StatusNotFound, "not_found")
		})
		assert.NoError(t, ts.realClient().DeleteImage(context.Background(), "42"))
	})

	t.Run("invalid id", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		assert.ErrorContains(t, ts.realClient().DeleteImage(context.Background(), "ami-1"), "invalid image id")
	})
}

func TestRealClient_ProtectImage(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	var body map[string]any
	ts.handleFunc("/images/7/actions/change_protection", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		jsonResponse(w, http.StatusCreated, schema.ImageActionChangeProtectionResponse{
			Action: schema.Action{ID: 3, Status: "success", Progress: 100},
		})
	})
	ts.handleFunc("/actions", func(w http.ResponseWriter, _ *http.Request) {
		jsonResponse(w, http.StatusOK, schema.ActionListResponse{
			Actions: []schema.Action{{ID: 3, Status: "success", Progress: 100}},
		})
	})

	require.NoError(t, ts.realClient().ProtectImage(context.Background(), "7", true))
	assert.Equal(t, true, body["delete"])
}

func TestRealClient_CreateSSHKey(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	var req schema.SSHKeyCreateRequest
	ts.handleFunc("/ssh_keys", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&req)
		jsonResponse(w, http.StatusCreated, schema.SSHKeyCreateResponse{
			SSHKey: schema.SSHKey{ID: 99, Name: req.Name, PublicKey: req.PublicKey},
		})
	})

	id, err := ts.realClient().CreateSSHKey(context.Background(), "key-build", "ssh-ed25519 AAAA", map[string]string{"type": "build-ssh-key"})
	require.NoError(t, err)
	assert.Equal(t, "99", id)
	assert.Equal(t, "key-build", req.Name)
}

func TestRealClient_EnableRescue_InvalidKeyID(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	_, err := ts.realClient().EnableRescue(context.Background(), "1", []string{"not-a-number"})
	assert.ErrorContains(t, err, "invalid ssh key id")
}
