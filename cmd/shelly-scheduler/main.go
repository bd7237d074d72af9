// Shelly Scheduler — запускает batches по расписаниям.
//
// Несколько экземпляров безопасны: на Postgres тик выполняет только
// держатель advisory lock. Batch отправляется воркерам через RabbitMQ
// или, без очереди, выполняется в процессе планировщика.
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
	"github.com/mimcmahon20/Shelly/internal/llm"
	"github.com/mimcmahon20/Shelly/internal/mq"
	"github.com/mimcmahon20/Shelly/internal/orchestrator"
	"github.com/mimcmahon20/Shelly/internal/repo"
	"github.com/mimcmahon20/Shelly/internal/scheduler"
	"github.com/mimcmahon20/Shelly/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("shelly-scheduler")
	logger.Info("starting shelly-scheduler")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
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

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	var dispatcher batch.Dispatcher
	var manager *batch.Manager
	if cfg.RabbitMQURL != "" {
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
		dispatcher = mq.NewPublisher(conn, logger)
	} else {
		manager = batch.NewManager(batch.Config{
			Executor: orchestrator.New(orchestrator.Config{
				Models: llm.NewClient(llm.ClientConfig{
					Registry: llm.NewCatalogRegistry(cfg.DefaultProvider, cfg.ProviderBaseURLs, nil),
					Logger:   logger,
					Metrics:  metrics,
				}),
				Logger:  logger,
				Metrics: metrics,
			}),
			Runs:        store.Runs,
			Batches:     store.Batches,
			Concurrency: cfg.BatchConcurrency,
			Logger:      logger,
			Metrics:     metrics,
		})
		dispatcher = manager
		logger.Info("no message queue configured, running batches in process")
	}

	var leader scheduler.Leader
	if store.Pool != nil {
		leader = repo.NewAdvisoryLock(store.Pool, scheduler.LockKey)
	}

	sched := scheduler.New(scheduler.Config{
		Schedules:  store.Schedules,
		Flows:      store.Flows,
		InputSets:  store.InputSets,
		Batches:    store.Batches,
		Dispatcher: dispatcher,
		Leader:     leader,
		Logger:     logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.SchedulerPort)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("scheduler loop started", "tick", cfg.ScheduleTick)
	if err := sched.Run(ctx, cfg.ScheduleTick); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", "error", err)
	}

	server.Shutdown(context.Background())
	if manager != nil {
		for _, id := range manager.Active() {
			manager.Abort(id)
		}
		manager.Wait()
	}
	logger.Info("shelly-scheduler stopped")
}
