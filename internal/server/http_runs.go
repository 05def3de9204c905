package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/quillworks/loom/internal/model"
)

type runRequestBody struct {
	ExecutionID string         `json:"execution_id,omitempty"`
	EngineID    string         `json:"engine_id,omitempty"`
	Nodes       []model.Node   `json:"nodes,omitempty"`
	Edges       []model.Edge   `json:"edges,omitempty"`
	UserInput   map[string]any `json:"user_input,omitempty"`
	User        string         `json:"user,omitempty"`
	Formats     []string       `json:"formats,omitempty"`
}

// handleStartRun handles POST /v1/runs. The default is asynchronous: the
// run id comes back immediately and progress flows over the event stream.
// ?wait=true blocks until the run finishes and returns the full result.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var in runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := s.buildRunRequest(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		result, err := s.runAndWait(r.Context(), req)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	s.startRun(req)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"execution_id": req.ExecutionID,
		"status":       model.StatusRunning.String(),
	})
}

// handleListRuns handles GET /v1/runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.store.ListRecords(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

// handleGetRun handles GET /v1/runs/{id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.ReadRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetResult handles GET /v1/runs/{id}/result. Results live in memory
// on the process that ran the pipeline; 404 means the run either is still
// going, ran elsewhere, or never existed.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, ok := s.result(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no result for this run")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePauseRun handles POST /v1/runs/{id}/pause.
func (s *Server) handlePauseRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Pause(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"execution_id": id,
		"status":       model.StatusPaused.String(),
	})
}

type resumeRequestBody struct {
	Guidance string   `json:"guidance,omitempty"`
	Formats  []string `json:"formats,omitempty"`
}

// handleResumeRun handles POST /v1/runs/{id}/resume. A run paused in this
// process is released in place. A run checkpointed by a dead process is
// resumed from its stored checkpoint, which requires the run to reference
// a stored engine so the pipeline can be recompiled.
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var in resumeRequestBody
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if err := s.engine.ResumeSignal(id, in.Guidance); err == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"execution_id": id,
			"status":       model.StatusRunning.String(),
		})
		return
	}

	rec, err := s.store.ReadRecord(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if !rec.Resumable || rec.Checkpoint == nil {
		writeError(w, http.StatusConflict, "run has no checkpoint to resume from")
		return
	}
	if rec.EngineID == "" {
		writeError(w, http.StatusConflict, "run was started with inline nodes; it can only be resumed by the process that paused it")
		return
	}

	req, err := s.buildRunRequest(r.Context(), runRequestBody{
		ExecutionID: id,
		EngineID:    rec.EngineID,
		Formats:     in.Formats,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	guidance := in.Guidance
	go func() {
		result, err := s.engine.Resume(context.Background(), req, guidance)
		if err != nil {
			s.logger.Error("resume failed", "execution_id", id, "error", err)
		}
		if result != nil {
			s.storeResult(id, result)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"execution_id": id,
		"status":       model.StatusRunning.String(),
	})
}

// handleStopRun handles POST /v1/runs/{id}/stop.
func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Stop(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"execution_id": id,
		"status":       "stop_requested",
	})
}
