package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/auth"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/db"
	"github.com/Leganyst/visit-scheduler/internal/grpcapi"
	"github.com/Leganyst/visit-scheduler/internal/httpapi"
	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/observability"
	"github.com/Leganyst/visit-scheduler/internal/ratelimit"
	"github.com/Leganyst/visit-scheduler/internal/service"
	"github.com/Leganyst/visit-scheduler/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("scheduler stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Конфиг и логгер.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init("visit-scheduler", cfg.App.LogFormat, cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.With(ctx, logger)

	// 2. БД через GORM, миграции и ограничение на пересечения.
	gormDB, err := db.NewGormDB(cfg.DB)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if cfg.DB.AutoMigrate {
		if err := model.AutoMigrate(gormDB); err != nil {
			return err
		}
		if err := model.InstallOverlapGuard(gormDB); err != nil {
			return err
		}
	}

	// 3. Сервисы.
	deps := service.Deps{DB: gormDB, Audit: audit.NewGormSink()}
	finder := service.NewSlotFinder(cfg.Scheduling, nil)
	appts := service.NewAppointmentService(deps, cfg.Scheduling)
	conv := service.NewConversationService(deps, appts, finder, cfg.Scheduling)
	intake := service.NewIntakeService(deps, appts, finder, cfg.Intake, cfg.Scheduling, cfg.App.PublicBaseURL)
	resch := service.NewRescheduleService(deps, appts, finder, cfg.Scheduling)
	voice := service.NewVoiceService(deps, conv, finder, newVoiceLimiter(ctx, cfg, logger))

	var manager *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		if manager, err = auth.NewManager(cfg.Auth); err != nil {
			return err
		}
	} else {
		logger.Warn("AUTH_JWT_SECRET is empty, admin API and gRPC are disabled")
	}

	// 4. Метрики на собственном реестре.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observability.Register(reg)

	// 5. HTTP.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	api := &httpapi.Server{
		DB:         gormDB,
		Appts:      appts,
		Conv:       conv,
		Intake:     intake,
		Reschedule: resch,
		Finder:     finder,
		Voice:      voice,
		Auth:       manager,
		Twilio:     cfg.Twilio,
		CORS:       cfg.HTTP.CORSOrigins,
		Gatherer:   reg,
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(logger),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errs := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	// 6. gRPC.
	grpcSrv, health := grpcapi.NewServer(grpcapi.NewScheduler(gormDB, appts, intake, finder, nil), manager)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("grpc server listening", "addr", cfg.GRPC.Addr)
		if err := grpcSrv.Serve(lis); err != nil {
			errs <- err
		}
	}()

	// 7. Сборщик просроченных удержаний.
	if cfg.Scheduling.SweeperEnabled {
		go worker.NewSweepLoop(cfg.Scheduling.SweepInterval, appts.SweepTick).Run(ctx)
	}

	// 8. Грейсфул-шатдаун по сигналу или падению сервера.
	select {
	case <-ctx.Done():
	case err = <-errs:
		logger.Error("server failed", "error", err)
	}
	logger.Info("shutting down")
	health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", "error", serr)
	}
	grpcSrv.GracefulStop()
	return err
}

// newVoiceLimiter: Redis при заданном адресе, иначе лимитер в памяти процесса.
func newVoiceLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) service.Limiter {
	perMinute := cfg.Twilio.CallerPerMinute
	if cfg.Redis.Addr != "" {
		client, err := ratelimit.OpenRedis(ctx, cfg.Redis)
		if err == nil {
			return ratelimit.NewRedis(client, perMinute, time.Minute)
		}
		logger.Warn("redis unavailable, using in-memory rate limiter", "error", err)
	}
	return ratelimit.NewMemory(perMinute, time.Minute)
}
