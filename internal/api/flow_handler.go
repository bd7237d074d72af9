package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mimcmahon20/Shelly/internal/engine"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

// ListFlows возвращает список всех flows.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.store.Flows.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]FlowSummary, len(flows))
	for i, f := range flows {
		result[i] = FlowSummaryFromDomain(f)
	}

	List(w, result, len(result))
}

// CreateFlow создаёт новый flow из JSON-документа.
// POST /api/v1/flows
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	flow, err := engine.ParseFlow(body)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	if HandleRepoError(w, h.logger, h.store.Flows.Create(r.Context(), flow), "") {
		return
	}

	h.logger.Info("flow created", "flow_id", flow.ID, "name", flow.Name)
	Created(w, flow)
}

// ImportFlow импортирует flow из JSON или YAML.
// POST /api/v1/flows/import?overwrite=true
//
// Без overwrite существующий ID даёт 409.
func (h *Handler) ImportFlow(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	flow, err := engine.ParseFlowAuto(body)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	err = h.store.Flows.Create(r.Context(), flow)
	if errors.Is(err, repo.ErrAlreadyExists) && r.URL.Query().Get("overwrite") == "true" {
		if existing, getErr := h.store.Flows.GetByID(r.Context(), flow.ID); getErr == nil {
			flow.CreatedAt = existing.CreatedAt
		}
		err = h.store.Flows.Update(r.Context(), flow)
	}
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	h.logger.Info("flow imported", "flow_id", flow.ID, "name", flow.Name)
	Created(w, flow)
}

// GetFlow возвращает flow по ID.
// GET /api/v1/flows/{id}?format=yaml
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.store.Flows.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	if r.URL.Query().Get("format") == "yaml" {
		data, err := engine.MarshalFlowYAML(flow)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	Success(w, flow)
}

// UpdateFlow заменяет документ flow.
// PUT /api/v1/flows/{id}
func (h *Handler) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.store.Flows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	flow, err := engine.ParseFlowAuto(body)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	flow.ID = id
	flow.CreatedAt = existing.CreatedAt
	flow.UpdatedAt = time.Now()

	if HandleRepoError(w, h.logger, h.store.Flows.Update(r.Context(), flow), "flow not found") {
		return
	}

	h.logger.Info("flow updated", "flow_id", flow.ID)
	Success(w, flow)
}

// DeleteFlow удаляет flow.
// DELETE /api/v1/flows/{id}
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if HandleRepoError(w, h.logger, h.store.Flows.Delete(r.Context(), id), "flow not found") {
		return
	}

	h.logger.Info("flow deleted", "flow_id", id)
	NoContent(w)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return nil, false
		}
		BadRequest(w, "failed to read request body")
		return nil, false
	}
	if len(body) == 0 {
		BadRequest(w, "empty request body")
		return nil, false
	}
	return body, true
}
