package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// Flow DTOs

// FlowSummary — краткое описание flow для списков.
type FlowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FlowSummaryFromDomain конвертирует domain.Flow в FlowSummary.
func FlowSummaryFromDomain(f domain.Flow) FlowSummary {
	return FlowSummary{
		ID:        f.ID,
		Name:      f.Name,
		Nodes:     len(f.Nodes),
		Edges:     len(f.Edges),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Run DTOs

// CreateRunRequest — запрос на запуск flow.
//
// Input — строка или объект.
type CreateRunRequest struct {
	Input any `json:"input"`
}

// RunSummary — run без результатов узлов.
type RunSummary struct {
	ID          string            `json:"id"`
	FlowID      string            `json:"flow_id"`
	BatchID     string            `json:"batch_id,omitempty"`
	Status      domain.RunStatus  `json:"status"`
	Input       any               `json:"input"`
	FinalOutput string            `json:"final_output"`
	Tokens      domain.TokenUsage `json:"tokens"`
	CostUSD     float64           `json:"cost_usd"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// RunSummaryFromDomain конвертирует domain.Run в RunSummary.
func RunSummaryFromDomain(r domain.Run) RunSummary {
	return RunSummary{
		ID:          r.ID,
		FlowID:      r.FlowID,
		BatchID:     r.BatchID,
		Status:      r.Status,
		Input:       r.Input,
		FinalOutput: r.FinalOutput,
		Tokens:      r.Tokens,
		CostUSD:     r.CostUSD,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// Batch DTOs

// CreateBatchRequest — запрос на запуск batch.
// Нужны либо Inputs, либо InputSetID.
type CreateBatchRequest struct {
	Name       string   `json:"name" validate:"max=200"`
	FlowIDs    []string `json:"flow_ids" validate:"required,min=1,dive,required"`
	Inputs     []string `json:"inputs" validate:"required_without=InputSetID"`
	InputSetID string   `json:"input_set_id"`
}

// CreateInputSetRequest — запрос на создание набора входов.
type CreateInputSetRequest struct {
	Name   string   `json:"name" validate:"required,max=200"`
	Inputs []string `json:"inputs" validate:"required,min=1"`
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name       string   `json:"name" validate:"max=200"`
	FlowIDs    []string `json:"flow_ids" validate:"required,min=1,dive,required"`
	InputSetID string   `json:"input_set_id" validate:"required"`
	CronExpr   string   `json:"cron_expr" validate:"required"`
	Timezone   string   `json:"timezone"`
	Enabled    *bool    `json:"enabled"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// decode читает JSON-тело и валидирует его.
// При ошибке отправляет 400 и возвращает false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		ValidationFailed(w, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("field %s failed %q (%s)", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field %s failed %q", fe.Field(), fe.Tag())
}

// queryLimit читает ?limit=; невалидное значение даёт def.
func queryLimit(r *http.Request, def int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
