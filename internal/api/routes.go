package api

import (
	"net/http"
)

// maxBodyBytes — предел тела запроса (flows с VFS бывают крупными).
const maxBodyBytes = 10 << 20

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger, h.metrics),
		MaxBody(maxBodyBytes),
	)

	// Flows
	mux.Handle("GET /api/v1/flows", chain(http.HandlerFunc(h.ListFlows)))
	mux.Handle("POST /api/v1/flows", chain(http.HandlerFunc(h.CreateFlow)))
	mux.Handle("POST /api/v1/flows/import", chain(http.HandlerFunc(h.ImportFlow)))
	mux.Handle("GET /api/v1/flows/{id}", chain(http.HandlerFunc(h.GetFlow)))
	mux.Handle("PUT /api/v1/flows/{id}", chain(http.HandlerFunc(h.UpdateFlow)))
	mux.Handle("DELETE /api/v1/flows/{id}", chain(http.HandlerFunc(h.DeleteFlow)))

	// Runs
	mux.Handle("POST /api/v1/flows/{id}/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/flows/{id}/runs", chain(http.HandlerFunc(h.ListFlowRuns)))
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("GET /api/v1/runs/{id}/events", chain(http.HandlerFunc(h.RunEvents)))

	// Batches
	mux.Handle("GET /api/v1/batches", chain(http.HandlerFunc(h.ListBatches)))
	mux.Handle("POST /api/v1/batches", chain(http.HandlerFunc(h.CreateBatch)))
	mux.Handle("GET /api/v1/batches/{id}", chain(http.HandlerFunc(h.GetBatch)))
	mux.Handle("POST /api/v1/batches/{id}/abort", chain(http.HandlerFunc(h.AbortBatch)))

	// Input sets
	mux.Handle("GET /api/v1/input-sets", chain(http.HandlerFunc(h.ListInputSets)))
	mux.Handle("POST /api/v1/input-sets", chain(http.HandlerFunc(h.CreateInputSet)))
	mux.Handle("GET /api/v1/input-sets/{id}", chain(http.HandlerFunc(h.GetInputSet)))
	mux.Handle("DELETE /api/v1/input-sets/{id}", chain(http.HandlerFunc(h.DeleteInputSet)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))

	// Providers
	mux.Handle("GET /api/v1/providers", chain(http.HandlerFunc(h.ListProviders)))

	mux.HandleFunc("GET /healthz", h.Healthz)
}
