// Shelly Worker — выполняет batches из очереди.
//
// Worker:
//   - Получает batch.requested из RabbitMQ (по одному batch за раз)
//   - Выполняет run с ограничением параллелизма
//   - Публикует run.completed после каждого run
//   - Слушает собственную очередь отмены
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mimcmahon20/Shelly/internal/batch"
	"github.com/mimcmahon20/Shelly/internal/config"
	"github.com/mimcmahon20/Shelly/internal/live"
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/mq"
	"github.com/mimcmahon20/Shelly/internal/orchestrator"
	"github.com/mimcmahon20/Shelly/internal/repo"
	"github.com/mimcmahon20/Shelly/internal/telemetry"
	"github.com/mimcmahon20/Shelly/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("shelly-worker")
	logger.Info("starting shelly-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.RabbitMQURL == "" {
		logger.Error("SHELLY_RABBITMQ_URL is required for the worker")
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := repo.Open(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("store opened", "driver", cfg.Store)

	// RabbitMQ
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

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// События run видны API только через общий Redis hub.
	var sink orchestrator.Sink = orchestrator.NopSink{}
	if cfg.RedisURL != "" {
		client, err := live.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		sink = live.NewSink(live.NewRedisHub(client, live.RedisConfig{Logger: logger}), logger)
	}

	executor := orchestrator.New(orchestrator.Config{
		Models: llm.NewClient(llm.ClientConfig{
			Registry: llm.NewCatalogRegistry(cfg.DefaultProvider, cfg.ProviderBaseURLs, nil),
			Logger:   logger,
			Metrics:  metrics,
		}),
		Logger:  logger,
		Metrics: metrics,
	})

	manager := batch.NewManager(batch.Config{
		Executor:    executor,
		Runs:        store.Runs,
		Batches:     store.Batches,
		Sink:        sink,
		Concurrency: cfg.BatchConcurrency,
		Logger:      logger,
		Metrics:     metrics,
	})

	w := worker.New(worker.Config{
		Store:     store,
		Manager:   manager,
		Publisher: publisher,
		Conn:      conn,
		WorkerID:  cfg.WorkerID,
		Logger:    logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() || !conn.IsConnected() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.WorkerPort)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Текущий batch отменяется: его run не начнутся заново после рестарта.
	for _, id := range manager.Active() {
		manager.Abort(id)
	}
	w.Stop()
	server.Shutdown(context.Background())
	logger.Info("shelly-worker stopped")
}
