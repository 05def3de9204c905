package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quillworks/loom/internal/events"
	"github.com/quillworks/loom/internal/idgen"
	"github.com/quillworks/loom/internal/model"
)

type engineInput struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Status      model.EngineStatus `json:"status,omitempty"`
	Nodes       []model.Node       `json:"nodes"`
	Edges       []model.Edge       `json:"edges"`
	CreatedBy   string             `json:"created_by,omitempty"`
}

// handleCreateEngine handles POST /v1/engines.
func (s *Server) handleCreateEngine(w http.ResponseWriter, r *http.Request) {
	var in engineInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := idgen.NewEngineID()
	if err != nil {
		respondError(w, err)
		return
	}
	now := time.Now().UTC()
	eng := &model.Engine{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		Nodes:       in.Nodes,
		Edges:       in.Edges,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if eng.Status == "" {
		eng.Status = model.EngineDraft
	}
	if err := model.ValidateEngine(eng); err != nil {
		respondError(w, err)
		return
	}

	if err := s.store.CreateEngine(r.Context(), eng); err != nil {
		respondError(w, err)
		return
	}

	s.publishEvent(r.Context(), events.TopicEngineCreated, events.EngineCreated{Engine: eng})
	writeJSON(w, http.StatusCreated, eng)
}

// handleListEngines handles GET /v1/engines. An optional ?status= filter
// narrows the list to draft, active or archived definitions.
func (s *Server) handleListEngines(w http.ResponseWriter, r *http.Request) {
	status := model.EngineStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown status "+status.String())
		return
	}

	list, err := s.store.ListEngines(r.Context(), status)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"engines": list})
}

// handleGetEngine handles GET /v1/engines/{id}.
func (s *Server) handleGetEngine(w http.ResponseWriter, r *http.Request) {
	eng, err := s.store.GetEngine(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng)
}

// handleUpdateEngine handles PUT /v1/engines/{id}. The body is a full
// replacement of the definition; bookkeeping fields are preserved.
func (s *Server) handleUpdateEngine(w http.ResponseWriter, r *http.Request) {
	var in engineInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	eng, err := s.store.GetEngine(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}

	eng.Name = in.Name
	eng.Description = in.Description
	if in.Status != "" {
		eng.Status = in.Status
	}
	eng.Nodes = in.Nodes
	eng.Edges = in.Edges
	eng.UpdatedAt = time.Now().UTC()
	if err := model.ValidateEngine(eng); err != nil {
		respondError(w, err)
		return
	}

	if err := s.store.UpdateEngine(r.Context(), eng); err != nil {
		respondError(w, err)
		return
	}

	s.publishEvent(r.Context(), events.TopicEngineUpdated, events.EngineUpdated{Engine: eng})
	writeJSON(w, http.StatusOK, eng)
}

// handleDeleteEngine handles DELETE /v1/engines/{id}.
func (s *Server) handleDeleteEngine(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteEngine(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	s.publishEvent(r.Context(), events.TopicEngineDeleted, events.EngineDeleted{EngineID: id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
