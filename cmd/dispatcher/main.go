package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/db"
	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/observability"
	"github.com/Leganyst/visit-scheduler/internal/outbox"
	"github.com/Leganyst/visit-scheduler/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("dispatcher stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init("outbox-dispatcher", cfg.App.LogFormat, cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.With(ctx, logger)

	if cfg.DB.Driver != config.DBDriverPostgres {
		return errors.New("outbox dispatcher requires DB_DRIVER=postgres")
	}
	pool, err := db.NewPgxPool(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	sender, err := outbox.NewSender(ctx, cfg.Outbox, cfg.AWS, logger)
	if err != nil {
		return err
	}
	disp := outbox.NewDispatcher(outbox.NewPgxStore(pool), sender, cfg.Outbox)

	tick := func(ctx context.Context) error {
		res, err := disp.RunOnce(ctx)
		if res.Claimed > 0 {
			logging.From(ctx).Info("outbox batch", "claimed", res.Claimed, "sent", res.Sent,
				"retried", res.Retried, "failed", res.Failed, "released", res.Released)
		}
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observability.Register(reg)

	ops := &http.Server{
		Addr:              cfg.Outbox.OpsAddr,
		Handler:           opsRouter(pool, reg, disp),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", "addr", cfg.Outbox.OpsAddr)
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", "error", err)
			stop()
		}
	}()

	worker.NewOutboxLoop(cfg.Outbox.Interval, tick).Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ops.Shutdown(shutdownCtx)
}

// opsRouter: служебные эндпоинты диспетчера.
func opsRouter(pool *pgxpool.Pool, reg *prometheus.Registry, disp *outbox.Dispatcher) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/run", func(w http.ResponseWriter, req *http.Request) {
		res, err := disp.RunOnce(req.Context())
		if err != nil {
			logging.From(req.Context()).Error("manual outbox run failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run failed"})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
