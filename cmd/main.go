package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cart-order-system/internal/config"
	"cart-order-system/internal/database"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/messaging"
	"cart-order-system/internal/metrics"
	"cart-order-system/internal/services/order"
	"cart-order-system/internal/services/selection"
)

const (
	modeCartService = "cart-service"
	modeReconciler  = "selection-reconciler"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (cart-service, selection-reconciler)")
		configPath = flag.String("config", "config.yaml", "Path to the YAML config file")
		port       = flag.Int("port", 0, "HTTP port, overrides server.port")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":          *mode,
		"port":          cfg.Server.Port,
		"events_driver": cfg.Events.Driver,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case modeCartService:
		err = runCartService(ctx, cfg, log)
	case modeReconciler:
		err = runReconciler(ctx, cfg, log)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}
	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

func newMetrics() *metrics.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.New(reg)
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*database.DB, error) {
	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// runCartService serves the cart HTTP API
func runCartService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	publisher, err := messaging.NewEventPublisher(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer publisher.Close()

	m := newMetrics()
	service := order.Assemble(database.NewStore(db), database.NewCatalog(db), publisher, db, m, log)
	handler := order.NewHandler(service, m, log)
	go followSelection(ctx, db, service.Tracker(), log)

	// no WriteTimeout: the stream endpoints hold the response open
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return serve(ctx, server, cfg.ShutdownTimeout(), log)
}

// followSelection feeds selection changes committed by any process into the
// tracker, so watchers see the reconciler's repairs without polling.
func followSelection(ctx context.Context, db *database.DB, tracker *selection.Tracker, log *logger.Logger) {
	for {
		err := db.Listen(ctx, database.SelectionChannel, func(payload string) {
			id, err := strconv.Atoi(payload)
			if err != nil {
				log.Warn("selection_notification_invalid", "Ignoring malformed selection notification", "listener", map[string]interface{}{"payload": payload})
				return
			}
			tracker.Observe(id)
		})
		if err == nil {
			return
		}
		log.Error("selection_listen_failed", "Selection listener stopped, restarting", "listener", err, nil)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// runReconciler keeps the persisted selection in line with the processing
// orders, driven by order events and a periodic tick.
func runReconciler(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	consumer, err := messaging.NewEventConsumer(ctx, cfg, log, modeReconciler)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	var source selection.EventSource
	if consumer != nil {
		defer consumer.Close()
		source = consumer
	}

	m := newMetrics()
	st := database.NewStore(db)
	tracker := selection.NewTracker(st, st, m, log)
	if _, err := tracker.Reconcile(ctx); err != nil {
		log.Warn("startup_reconcile_failed", "Initial reconciliation failed", "startup", map[string]interface{}{
			"error": err.Error(),
		})
	}

	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- serve(ctx, server, cfg.ShutdownTimeout(), log) }()

	workerErr := selection.NewWorker(tracker, source, cfg.ReconcileInterval(), log).Start(ctx)
	cancel()
	if err := <-serveErr; err != nil {
		return err
	}
	return workerErr
}

// serve runs server until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, server *http.Server, timeout time.Duration, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server_started", fmt.Sprintf("HTTP server listening on %s", server.Addr), "startup", nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("graceful_shutdown", "Shutting down HTTP server", "", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
