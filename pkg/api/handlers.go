package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/cuemby/fedcoord/pkg/privacy"
)

type registerRequest struct {
	ClientName string `json:"client_name"`
}

type registerResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientName == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "client_name is required", Reason: "invalid_delta_format"})
		return
	}

	id, key, err := s.core.RegisterWorker(req.ClientName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		Success: true, Message: "worker registered", ClientID: id, APIKey: key,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	apiKey := r.URL.Query().Get("api_key")

	task, err := s.core.GetTask(clientID, apiKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type submitUpdateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleSubmitUpdate forwards the whole request body to Core as the
// delta document: per spec.md's wire format, client_id/round_id/api_key
// ride alongside weight_delta in one JSON object, and that object is
// exactly what the validator and privacy filter operate on downstream.
// It's parsed with privacy.ParseDocument rather than encoding/json
// directly because a non-finite value may arrive as a bare NaN or
// Infinity token, which the standard decoder rejects outright.
func (s *Server) handleSubmitUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read body", Reason: "invalid_delta_format"})
		return
	}

	doc, ok := privacy.ParseDocument(string(body))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body", Reason: "invalid_weight_delta_format"})
		return
	}

	clientID, _ := doc["client_id"].(string)
	apiKey, _ := doc["api_key"].(string)
	roundID, ok := asInt(doc["round_id"])
	if clientID == "" || !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "client_id and round_id are required", Reason: "invalid_weight_delta_format"})
		return
	}

	if err := s.core.SubmitUpdate(clientID, roundID, apiKey, string(body)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitUpdateResponse{Success: true, Message: "update accepted"})
}

func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathInt(r, "round_id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "round_id must be an integer", Reason: "invalid_delta_format"})
		return
	}
	result, err := s.core.GetAggregate(roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathInt(r, "round_id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "round_id must be an integer", Reason: "invalid_delta_format"})
		return
	}
	snap, err := s.core.GetStatus(roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type modelResponse struct {
	Version   string         `json:"version"`
	ModelData map[string]any `json:"model_data"`
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	version := r.PathValue("version")
	doc, err := s.core.GetModel(version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelResponse{Version: version, ModelData: doc})
}

func (s *Server) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.GetMetricsSnapshot())
}

func (s *Server) handleMetricsLatest(w http.ResponseWriter, r *http.Request) {
	m, err := s.core.GetLatestRoundMetrics()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMetricsRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathInt(r, "round_id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "round_id must be an integer", Reason: "invalid_delta_format"})
		return
	}
	m, err := s.core.GetRoundMetrics(roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleTopReputation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.TopReputation(queryInt(r, "top", 10)))
}

func (s *Server) handleGetReputation(w http.ResponseWriter, r *http.Request) {
	status, err := s.core.GetReputation(r.PathValue("client_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTopIncentives(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.TopIncentives(queryInt(r, "top", 10)))
}

func (s *Server) handleGetIncentives(w http.ResponseWriter, r *http.Request) {
	rec, err := s.core.GetIncentives(r.PathValue("client_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAsyncStats(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathInt(r, "round_id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "round_id must be an integer", Reason: "invalid_delta_format"})
		return
	}
	stats, err := s.core.GetAsyncStats(roundID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
