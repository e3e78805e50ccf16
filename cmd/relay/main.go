package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-relay/internal/audit"
	"github.com/xela07ax/approval-relay/internal/infra"
	"github.com/xela07ax/approval-relay/internal/relay/handler"
	"github.com/xela07ax/approval-relay/internal/relay/server"
	"github.com/xela07ax/approval-relay/internal/relay/service"
	"github.com/xela07ax/approval-relay/internal/repository/memory"
	"github.com/xela07ax/approval-relay/internal/repository/postgres"
	"github.com/xela07ax/approval-relay/internal/webhook"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("relay stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст старта: SIGTERM во время ожидания БД тоже прерывает запуск
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(reg)

	// 2. Хранилище заявок и журнала
	var (
		repo   service.ApprovalRepository
		events interface {
			audit.StorageInterface
			service.EventReader
		}
	)
	switch cfg.Database.Driver {
	case infra.DriverMemory:
		logger.Warn("using in-memory store, data will be lost on restart")
		repo, events = memory.NewApprovalRepo(), memory.NewEventRepo()
	default:
		pool, err := postgres.Connect(appCtx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.Database.Migrate {
			if err := postgres.Migrate(appCtx, pool); err != nil {
				return err
			}
		}
		repo, events = postgres.NewApprovalRepo(pool), postgres.NewEventRepo(pool)
	}

	// 3. Сигналы (опционально)
	var signals service.Signals = service.NoopSignals{}
	if cfg.Redis.Addr != "" {
		rdb, err := infra.ConnectRedis(appCtx, cfg.Redis, cfg.Database.ConnectAttempts, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
		signals = service.NewRedisSignals(rdb, logger)
	} else {
		logger.Info("redis is not configured, decision signals disabled")
	}

	// 4. Журнал жизненного цикла: события уходят в базу пачками
	journal := audit.NewJournal(events, logger, audit.Options{
		BufferSize:    cfg.Journal.BufferSize,
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
		BufferGauge:   metrics.JournalBufferFill,
	})
	journal.Start()
	defer journal.Stop()

	// 5. Оркестратор
	forwarder := webhook.New(cfg.Webhook, nil, metrics, logger)
	svc := service.NewApprovalService(service.Dependencies{
		Repo:      repo,
		Forwarder: forwarder,
		Journal:   journal,
		Events:    events,
		Signals:   signals,
		Metrics:   metrics,
		Logger:    logger,
	}, service.Options{
		FailurePolicy: cfg.Webhook.FailurePolicy,
		MarkForwarded: cfg.Webhook.MarkForwarded,
	})

	// 6. HTTP Server
	api := server.NewRelayServer(logger, handler.NewApprovalHandler(svc, logger), svc, reg)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("approval relay started",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Database.Driver),
			zap.String("failure_policy", cfg.Webhook.FailurePolicy))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 7. Graceful Shutdown
	select {
	case <-appCtx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	logger.Info("approval relay stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// journal.Stop и закрытие пулов выполняются в defer после остановки HTTP
	logger.Info("approval relay exited properly")
	return nil
}
