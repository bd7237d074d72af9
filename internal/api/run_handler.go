package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/live"
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/orchestrator"
	"github.com/mimcmahon20/Shelly/internal/repo"
)

// APIKeyHeader — префикс заголовков с ключами провайдеров:
// X-API-Key-<provider>, например X-API-Key-openai.
const APIKeyHeader = "X-API-Key-"

// CreateRun запускает flow.
// POST /api/v1/flows/{id}/runs
//
// По умолчанию ждёт завершения и возвращает run целиком (201, даже если
// run завершился FAILED). С заголовком Accept: text/event-stream
// отдаёт события run по мере выполнения.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	flow, err := h.store.Flows.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}

	var req CreateRunRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Input == nil {
		BadRequest(w, "input is required")
		return
	}

	ctx := llm.WithCredentials(r.Context(), credentialsFromHeaders(r.Header))
	run := orchestrator.NewRun(flow.ID, req.Input)
	sink := live.NewSink(h.hub, h.logger)

	if !wantsStream(r) {
		h.executeRun(ctx, run, flow, sink)
		Created(w, run)
		return
	}

	// Подписка до старта: события не теряются.
	events, err := h.hub.Subscribe(r.Context(), run.ID)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	go h.executeRun(ctx, run, flow, sink)

	w.Header().Set("X-Run-ID", run.ID)
	h.streamEvents(r, newSSE(w), run.ID, events)
}

// executeRun выполняет run, сохраняет его и публикует терминальное событие.
func (h *Handler) executeRun(ctx context.Context, run *domain.Run, flow *domain.Flow, sink *live.Sink) {
	if err := h.executor.ExecuteRun(ctx, run, flow, sink); err != nil {
		h.logger.Warn("run failed", "run_id", run.ID, "flow_id", flow.ID, "error", err)
	}
	if err := h.store.Runs.Save(context.WithoutCancel(ctx), run); err != nil {
		h.logger.Error("failed to save run", "run_id", run.ID, "error", err)
	}
	sink.RunFinished(run)
}

// ListFlowRuns возвращает историю runs flow, новые первыми.
// GET /api/v1/flows/{id}/runs?limit=...
func (h *Handler) ListFlowRuns(w http.ResponseWriter, r *http.Request) {
	h.listRuns(w, r, repo.RunFilter{
		FlowID: r.PathValue("id"),
		Limit:  queryLimit(r, 50),
	})
}

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?flow_id=...&batch_id=...&limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.listRuns(w, r, repo.RunFilter{
		FlowID:  q.Get("flow_id"),
		BatchID: q.Get("batch_id"),
		Limit:   queryLimit(r, 50),
	})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request, filter repo.RunFilter) {
	runs, err := h.store.Runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunSummary, len(runs))
	for i, run := range runs {
		result[i] = RunSummaryFromDomain(run)
	}
	List(w, result, len(result))
}

// GetRun возвращает run по ID вместе с результатами узлов.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.Runs.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}
	Success(w, run)
}

// RunEvents отдаёт события run в SSE.
// GET /api/v1/runs/{id}/events
//
// Для сохранённого run события восстанавливаются из записи. Для
// выполняющегося run поток идёт из live hub: сначала история, затем
// новые события.
func (h *Handler) RunEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	run, err := h.store.Runs.GetByID(r.Context(), id)
	switch {
	case err == nil && run.IsFinished():
		events, err := live.Replay(run)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		sse := newSSE(w)
		for _, event := range events {
			if err := sse.Event(event); err != nil {
				return
			}
		}
		return
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		InternalError(w, h.logger, err)
		return
	}

	events, err := h.hub.Subscribe(r.Context(), id)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	h.streamEvents(r, newSSE(w), id, events)
}

// credentialsFromHeaders собирает ключи провайдеров из заголовков запроса.
func credentialsFromHeaders(header http.Header) map[string]string {
	keys := make(map[string]string)
	for _, p := range llm.Providers() {
		if v := header.Get(APIKeyHeader + p.Name); v != "" {
			keys[p.Name] = v
		}
	}
	return keys
}
