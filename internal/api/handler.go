package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/live"
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/repo"
	"github.com/mimcmahon20/Shelly/internal/telemetry"
)

// DefaultHeartbeat — период SSE-комментариев, удерживающих соединение.
const DefaultHeartbeat = 15 * time.Second

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store      *repo.Store
	executor   batch.FlowExecutor
	dispatcher batch.Dispatcher
	aborter    batch.Aborter
	hub        live.Hub
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	heartbeat  time.Duration
	validate   *validator.Validate
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store *repo.Store

	// Executor выполняет одиночные run (POST /flows/{id}/runs).
	Executor batch.FlowExecutor

	// Dispatcher запускает batches: *batch.Manager или *mq.Publisher.
	Dispatcher batch.Dispatcher

	// Aborter отменяет batches.
	Aborter batch.Aborter

	// Hub — live-события run. По умолчанию in-memory hub.
	Hub live.Hub

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Heartbeat — период SSE heartbeat. По умолчанию DefaultHeartbeat.
	Heartbeat time.Duration
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = live.NewMemoryHub(live.MemoryConfig{})
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	return &Handler{
		store:      cfg.Store,
		executor:   cfg.Executor,
		dispatcher: cfg.Dispatcher,
		aborter:    cfg.Aborter,
		hub:        cfg.Hub,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		heartbeat:  cfg.Heartbeat,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ListProviders возвращает каталог провайдеров и моделей.
// GET /api/v1/providers
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers := llm.Providers()
	List(w, providers, len(providers))
}

// Healthz — проверка живости.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
