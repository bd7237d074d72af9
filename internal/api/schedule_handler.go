package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/domain"
	"github.com/mimcmahon20/Shelly/internal/scheduler"
)

// ListSchedules возвращает все расписания.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.store.Schedules.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	List(w, schedules, len(schedules))
}

// CreateSchedule создаёт расписание регрессионного batch.
// POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := batch.LoadFlows(r.Context(), h.store.Flows, req.FlowIDs); HandleRepoError(w, h.logger, err, "flow not found") {
		return
	}
	if _, err := h.store.InputSets.GetByID(r.Context(), req.InputSetID); HandleRepoError(w, h.logger, err, "input set not found") {
		return
	}

	now := time.Now()
	sched := &domain.Schedule{
		ID:         uuid.NewString(),
		Name:       req.Name,
		FlowIDs:    req.FlowIDs,
		InputSetID: req.InputSetID,
		CronExpr:   req.CronExpr,
		Timezone:   req.Timezone,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if sched.Timezone == "" {
		sched.Timezone = scheduler.DefaultTimezone
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}

	if err := scheduler.Validate(sched); err != nil {
		ValidationFailed(w, err.Error())
		return
	}
	nextDue, err := scheduler.NextDue(sched, now)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	sched.NextDueAt = &nextDue

	if HandleRepoError(w, h.logger, h.store.Schedules.Create(r.Context(), sched), "") {
		return
	}

	h.logger.Info("schedule created",
		"schedule_id", sched.ID,
		"cron", sched.CronExpr,
		"next_due_at", nextDue,
	)
	Created(w, sched)
}

// GetSchedule возвращает расписание.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := h.store.Schedules.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}
	Success(w, sched)
}

// DeleteSchedule удаляет расписание.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if HandleRepoError(w, h.logger, h.store.Schedules.Delete(r.Context(), id), "schedule not found") {
		return
	}

	h.logger.Info("schedule deleted", "schedule_id", id)
	NoContent(w)
}

// SetScheduleEnabled включает или выключает расписание.
// PUT /api/v1/schedules/{id}/enabled
//
// При включении следующий запуск пересчитывается от текущего времени,
// пропущенные срабатывания не догоняются.
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	sched, err := h.store.Schedules.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	var req SetEnabledRequest
	if !h.decode(w, r, &req) {
		return
	}

	now := time.Now()
	if req.Enabled && !sched.Enabled {
		nextDue, err := scheduler.NextDue(sched, now)
		if err != nil {
			ValidationFailed(w, err.Error())
			return
		}
		sched.NextDueAt = &nextDue
	}
	sched.Enabled = req.Enabled
	sched.UpdatedAt = now

	if HandleRepoError(w, h.logger, h.store.Schedules.Update(r.Context(), sched), "schedule not found") {
		return
	}

	h.logger.Info("schedule enabled changed", "schedule_id", sched.ID, "enabled", sched.Enabled)
	Success(w, sched)
}
