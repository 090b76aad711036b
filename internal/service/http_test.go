package service_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volsnap-project/volsnap/internal/service"
	"github.com/volsnap-project/volsnap/pkg/logging"
	"github.com/volsnap-project/volsnap/pkg/model"
)

func newHTTPEnv(t *testing.T) (*env, *httptest.Server) {
	t.Helper()
	e := newEnv(t)
	server := service.NewServer(e.manager, e.reg, logging.NewLogger(logging.LevelError))
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return e, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestServer_CreateAndGetSnapshot(t *testing.T) {
	e, ts := newHTTPEnv(t)

	resp := postJSON(t, ts.URL+"/snapshots",
		map[string]string{"file": "/a", "user": "alice", "name": "snap1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created struct {
		UUID string `json:"uuid"`
	}
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.UUID)

	waitStatus(t, e.meta, created.UUID, model.StatusDone)

	resp, err := http.Get(ts.URL + "/snapshots/" + created.UUID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		UUID     string       `json:"uuid"`
		Status   model.Status `json:"status"`
		Progress uint32       `json:"progress"`
	}
	decodeBody(t, resp, &got)
	assert.Equal(t, created.UUID, got.UUID)
	assert.Equal(t, model.StatusDone, got.Status)
	assert.Equal(t, uint32(100), got.Progress)
}

func TestServer_CreateRejectsInvalidRequest(t *testing.T) {
	_, ts := newHTTPEnv(t)

	resp := postJSON(t, ts.URL+"/snapshots",
		map[string]string{"file": "relative/name", "user": "alice", "name": "snap1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CreateUnknownFile(t *testing.T) {
	e, ts := newHTTPEnv(t)
	e.fake.FileInfo = nil // upstream answers NOT_EXIST

	resp := postJSON(t, ts.URL+"/snapshots",
		map[string]string{"file": "/a", "user": "alice", "name": "snap1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListSnapshots(t *testing.T) {
	e, ts := newHTTPEnv(t)

	info, err := e.manager.CreateSnapshot("/a", "alice", "snap1")
	require.NoError(t, err)
	waitStatus(t, e.meta, info.UUID, model.StatusDone)

	resp, err := http.Get(ts.URL + "/snapshots?file=" + url.QueryEscape("/a"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []struct {
		UUID string `json:"uuid"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, info.UUID, list[0].UUID)
}

func TestServer_DeleteSnapshot(t *testing.T) {
	e, ts := newHTTPEnv(t)

	info, err := e.manager.CreateSnapshot("/a", "alice", "snap1")
	require.NoError(t, err)
	waitStatus(t, e.meta, info.UUID, model.StatusDone)

	deleteURL := fmt.Sprintf("%s/snapshots/%s?user=alice&file=%s",
		ts.URL, info.UUID, url.QueryEscape("/a"))
	req, err := http.NewRequest(http.MethodDelete, deleteURL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitGone(t, e.meta, info.UUID)

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/snapshots/" + info.UUID)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 5*time.Second, 5*time.Millisecond)
}

func TestServer_DeleteMissingIsOK(t *testing.T) {
	_, ts := newHTTPEnv(t)

	req, err := http.NewRequest(http.MethodDelete,
		ts.URL+"/snapshots/never-existed?user=alice&file="+url.QueryEscape("/a"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CancelUnknownTask(t *testing.T) {
	_, ts := newHTTPEnv(t)

	resp := postJSON(t, ts.URL+"/snapshots/never-existed/cancel", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	_, ts := newHTTPEnv(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
