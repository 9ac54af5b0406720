package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexanderramin/crq/internal/cli"
	"github.com/alexanderramin/crq/internal/cli/formatter"
	"github.com/alexanderramin/crq/internal/config"
	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/repository"
	"github.com/alexanderramin/crq/internal/service"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprint(os.Stderr, formatter.FormatError(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// Repositories for the read side; writes go through the unit of work.
	userRepo := repository.NewSQLiteUserRepo(database)
	uow := db.NewSQLiteUnitOfWork(database)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observers := []service.UseCaseObserver{service.NewMetricsObserver(reg)}
	if cfg.LogUseCases {
		observers = append(observers, service.NewSlogUseCaseObserver(logger))
	}

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
	}

	app := &cli.App{
		Workflow: service.NewWorkflowService(uow, cfg.Policy(), observers...),
		Query: service.NewQueryService(
			repository.NewSQLiteChangeRequestRepo(database),
			repository.NewSQLiteApprovalRepo(database),
			repository.NewSQLiteAssignmentRepo(database),
			repository.NewSQLiteCommentRepo(database),
			repository.NewSQLiteHistoryRepo(database),
			userRepo,
		),
		Users:       service.NewUserService(uow, userRepo, cfg.SupervisorChainLimit, observers...),
		DefaultUser: cfg.User,
	}

	app.IsInteractive = func() bool {
		return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	}

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "addr", addr, "error", err)
		}
	}()
	logger.Debug("metrics listener started", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
