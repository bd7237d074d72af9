package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/domain"
)

// CreateBatch создаёт batch и ставит его на выполнение.
// POST /api/v1/batches
//
// Возвращает 202: batch выполняется в фоне, прогресс доступен
// через GET /api/v1/batches/{id}.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	flows, err := batch.LoadFlows(r.Context(), h.store.Flows, req.FlowIDs)
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	b := batch.NewBatch(req.Name, req.FlowIDs, req.Inputs)
	b.InputSetID = req.InputSetID
	inputs, err := batch.ResolveInputs(r.Context(), h.store.InputSets, b)
	if HandleRepoError(w, h.logger, err, "input set not found") {
		return
	}
	if len(inputs) == 0 {
		ValidationFailed(w, "batch needs inputs or an input set")
		return
	}
	b.Inputs = inputs
	b.Progress.Total = len(flows) * len(inputs)

	if HandleRepoError(w, h.logger, h.store.Batches.Create(r.Context(), b), "") {
		return
	}

	// Снимок до запуска: дальше batch меняет runner.
	snapshot := *b
	if err := h.dispatcher.Dispatch(r.Context(), b, flows, ""); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("batch dispatched",
		"batch_id", snapshot.ID,
		"flows", len(snapshot.FlowIDs),
		"inputs", len(snapshot.Inputs),
	)
	Accepted(w, snapshot)
}

// ListBatches возвращает последние batches.
// GET /api/v1/batches?limit=...
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.store.Batches.List(r.Context(), queryLimit(r, 50))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	List(w, batches, len(batches))
}

// GetBatch возвращает batch с прогрессом.
// GET /api/v1/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.Batches.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "batch not found") {
		return
	}
	Success(w, b)
}

// AbortBatch запрашивает отмену batch.
// POST /api/v1/batches/{id}/abort
//
// Уже начатые run доводятся до конца, новые не запускаются.
func (h *Handler) AbortBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	b, err := h.store.Batches.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "batch not found") {
		return
	}
	if b.Status.IsTerminal() {
		InvalidState(w, "batch is already "+string(b.Status))
		return
	}

	if err := h.aborter.Abort(r.Context(), id); err != nil {
		if errors.Is(err, batch.ErrNotRunning) {
			InvalidState(w, "batch is not running")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("batch abort requested", "batch_id", id)
	Accepted(w, map[string]string{"id": id, "status": "abort_requested"})
}

// Input sets

// ListInputSets возвращает все наборы входов.
// GET /api/v1/input-sets
func (h *Handler) ListInputSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.store.InputSets.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	List(w, sets, len(sets))
}

// CreateInputSet создаёт набор входов.
// POST /api/v1/input-sets
func (h *Handler) CreateInputSet(w http.ResponseWriter, r *http.Request) {
	var req CreateInputSetRequest
	if !h.decode(w, r, &req) {
		return
	}

	set := &domain.InputSet{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Inputs:    req.Inputs,
		CreatedAt: time.Now(),
	}
	if HandleRepoError(w, h.logger, h.store.InputSets.Create(r.Context(), set), "") {
		return
	}
	Created(w, set)
}

// GetInputSet возвращает набор входов.
// GET /api/v1/input-sets/{id}
func (h *Handler) GetInputSet(w http.ResponseWriter, r *http.Request) {
	set, err := h.store.InputSets.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "input set not found") {
		return
	}
	Success(w, set)
}

// DeleteInputSet удаляет набор входов.
// DELETE /api/v1/input-sets/{id}
func (h *Handler) DeleteInputSet(w http.ResponseWriter, r *http.Request) {
	if HandleRepoError(w, h.logger, h.store.InputSets.Delete(r.Context(), r.PathValue("id")), "input set not found") {
		return
	}
	NoContent(w)
}
