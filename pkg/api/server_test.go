package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuemby/fedcoord/pkg/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *coordinator.Core) {
	t.Helper()
	cfg := coordinator.DefaultConfig()
	cfg.DataDir = t.TempDir()
	core, err := coordinator.New(cfg)
	require.NoError(t, err)
	return NewServer(core), core
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestServer_RegisterAndGetTask(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/client/register", jsonBody(`{"client_name":"alpha"}`))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg registerResponse
	decodeBody(t, rec, &reg)
	assert.True(t, reg.Success)
	assert.NotEmpty(t, reg.ClientID)
	assert.NotEmpty(t, reg.APIKey)

	taskReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/task/%s?api_key=%s", reg.ClientID, reg.APIKey), nil)
	taskRec := httptest.NewRecorder()
	s.mux.ServeHTTP(taskRec, taskReq)
	require.Equal(t, http.StatusOK, taskRec.Code)

	var task struct {
		RoundID      int    `json:"round_id"`
		ModelVersion string `json:"model_version"`
	}
	decodeBody(t, taskRec, &task)
	assert.Equal(t, "v1", task.ModelVersion)
}

func TestServer_GetTask_BadAPIKey(t *testing.T) {
	s, core := newTestServer(t)
	id, _, err := core.RegisterWorker("alpha")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/task/"+id+"?api_key=wrong", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, "unauthenticated", body.Reason)
}

func TestServer_SubmitUpdate_HappyPath(t *testing.T) {
	s, core := newTestServer(t)
	id, key, err := core.RegisterWorker("alpha")
	require.NoError(t, err)
	task, err := core.GetTask(id, key)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"client_id":%q,"round_id":%d,"api_key":%q,"weight_delta":[[0.1,0.2]]}`,
		id, task.RoundID, key)
	req := httptest.NewRequest(http.MethodPost, "/update", jsonBody(body))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitUpdateResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)

	aggReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/aggregate/%d", task.RoundID), nil)
	aggRec := httptest.NewRecorder()
	s.mux.ServeHTTP(aggRec, aggReq)
	require.Equal(t, http.StatusOK, aggRec.Code)

	var result struct {
		Status string `json:"status"`
	}
	decodeBody(t, aggRec, &result)
	assert.Equal(t, "aggregated", result.Status)
}

func TestServer_SubmitUpdate_NonFinite(t *testing.T) {
	s, core := newTestServer(t)
	id, key, err := core.RegisterWorker("alpha")
	require.NoError(t, err)
	task, err := core.GetTask(id, key)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"client_id":%q,"round_id":%d,"api_key":%q,"weight_delta":[[NaN,1.0]]}`,
		id, task.RoundID, key)
	req := httptest.NewRequest(http.MethodPost, "/update", jsonBody(body))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorBody
	decodeBody(t, rec, &resp)
	assert.Equal(t, "non_finite_values", resp.Reason)
}

func TestServer_SubmitUpdate_InvalidRoundAssignment(t *testing.T) {
	s, core := newTestServer(t)
	id, key, err := core.RegisterWorker("alpha")
	require.NoError(t, err)
	task, err := core.GetTask(id, key)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"client_id":%q,"round_id":%d,"api_key":%q,"weight_delta":[[0.1]]}`,
		id, task.RoundID+999, key)
	req := httptest.NewRequest(http.MethodPost, "/update", jsonBody(body))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorBody
	decodeBody(t, rec, &resp)
	assert.Equal(t, "invalid_round_assignment", resp.Reason)
}

func TestServer_Register_DuplicateIsBadRequest(t *testing.T) {
	s, core := newTestServer(t)
	_, _, err := core.RegisterWorker("alpha")
	require.NoError(t, err)

	// Force the already-registered path through Core directly: the HTTP
	// layer always mints a fresh client_id, so duplication can only be
	// observed by exercising writeError's mapping for the sentinel.
	rec := httptest.NewRecorder()
	writeError(rec, coordinator.ErrAlreadyRegistered)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorBody
	decodeBody(t, rec, &resp)
	assert.Equal(t, "already_registered", resp.Reason)
}

func TestServer_GetModel_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/model/v999", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetModel_Seeded(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/model/v1", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp modelResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "v1", resp.Version)
}

func TestServer_HealthAndReady(t *testing.T) {
	s, core := newTestServer(t)
	core.Start()
	defer core.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	reqReady := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	recReady := httptest.NewRecorder()
	s.mux.ServeHTTP(recReady, reqReady)
	assert.Equal(t, http.StatusOK, recReady.Code)
}

func TestServer_ReputationAndIncentivesLeaderboards(t *testing.T) {
	s, core := newTestServer(t)
	id, key, err := core.RegisterWorker("alpha")
	require.NoError(t, err)
	task, err := core.GetTask(id, key)
	require.NoError(t, err)
	require.NoError(t, core.SubmitUpdate(id, task.RoundID, key, `{"weight_delta":[[0.1]]}`))

	req := httptest.NewRequest(http.MethodGet, "/reputation?top=5", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var top []map[string]any
	decodeBody(t, rec, &top)
	assert.Len(t, top, 1)

	reqOne := httptest.NewRequest(http.MethodGet, "/reputation/"+id, nil)
	recOne := httptest.NewRecorder()
	s.mux.ServeHTTP(recOne, reqOne)
	assert.Equal(t, http.StatusOK, recOne.Code)
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
