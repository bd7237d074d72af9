// Shelly API — HTTP API для flows, runs, batches и schedules.
//
// API:
//   - Выполняет одиночные run синхронно или с потоком SSE
//   - Запускает batches в своём процессе (SHELLY_BATCH_MODE=local)
//     или отправляет их воркерам через RabbitMQ (queue)
//   - Отдаёт live-события run из памяти или Redis
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mimcmahon20/Shelly/internal/api"
	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/config"
	"github.com/mimcmahon20/Shelly/internal/live"
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/mq"
	"github.com/mimcmahon20/Shelly/internal/orchestrator"
	"github.com/mimcmahon20/Shelly/internal/repo"
	"github.com/mimcmahon20/Shelly/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("shelly-api")
	logger.Info("starting shelly-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := repo.Open(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("store opened", "driver", cfg.Store)

	if seeded, err := repo.SeedExampleFlow(ctx, store.Flows); err != nil {
		logger.Warn("failed to seed example flow", "error", err)
	} else if seeded {
		logger.Info("example flow seeded")
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Live hub: Redis, если задан, иначе память процесса
	var hub live.Hub
	if cfg.RedisURL != "" {
		client, err := live.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		hub = live.NewRedisHub(client, live.RedisConfig{Logger: logger})
		logger.Info("redis hub connected")
	} else {
		memHub := live.NewMemoryHub(live.MemoryConfig{})
		defer memHub.Close()
		hub = memHub
	}

	models := llm.NewClient(llm.ClientConfig{
		Registry:    llm.NewCatalogRegistry(cfg.DefaultProvider, cfg.ProviderBaseURLs, nil),
		Credentials: llm.EnvCredentials{},
		Logger:      logger,
		Metrics:     metrics,
	})
	executor := orchestrator.New(orchestrator.Config{
		Models:  models,
		Logger:  logger,
		Metrics: metrics,
	})

	var dispatcher batch.Dispatcher
	var aborter batch.Aborter
	var manager *batch.Manager

	switch cfg.BatchMode {
	case config.BatchModeQueue:
		conn, err := mq.Dial(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		if err := mq.SetupTopology(ctx, conn); err != nil {
			logger.Error("failed to setup topology", "error", err)
			os.Exit(1)
		}

		publisher := mq.NewPublisher(conn, logger)
		dispatcher, aborter = publisher, publisher
		logger.Info("batches dispatched to workers", "topology", mq.TopologyInfo())

	default:
		manager = batch.NewManager(batch.Config{
			Executor:    executor,
			Runs:        store.Runs,
			Batches:     store.Batches,
			Sink:        live.NewSink(hub, logger),
			Concurrency: cfg.BatchConcurrency,
			Logger:      logger,
			Metrics:     metrics,
		})
		dispatcher, aborter = manager, batch.LocalAborter{Manager: manager}
		logger.Info("batches run in process", "concurrency", cfg.BatchConcurrency)
	}

	handler := api.NewHandler(api.Config{
		Store:      store,
		Executor:   executor,
		Dispatcher: dispatcher,
		Aborter:    aborter,
		Hub:        hub,
		Metrics:    metrics,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := config.Addr(cfg.APIPort)

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if manager != nil {
		stopBatches(manager, logger)
	}

	logger.Info("stopped")
}

// stopBatches отменяет выполняющиеся batches и ждёт их завершения.
func stopBatches(manager *batch.Manager, logger *slog.Logger) {
	for _, id := range manager.Active() {
		if err := manager.Abort(id); err != nil && !errors.Is(err, batch.ErrNotRunning) {
			logger.Warn("failed to abort batch", "batch_id", id, "error", err)
		}
	}
	manager.Wait()
}
