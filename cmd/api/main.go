package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/bloodbank/internal/app"
	"github.com/jwalitptl/bloodbank/internal/config"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	withWorkers := flag.Bool("with-workers", false, "run background workers in this process")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(cfg.Log.ToLoggerConfig())
	if err := run(cfg, appLog, *withWorkers); err != nil {
		appLog.Fatal(err, "server exited with error")
	}
	appLog.Info("server exited properly")
}

func run(cfg *config.Config, log *logger.Logger, withWorkers bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, "bloodbank", "api")

	infra, err := app.OpenInfra(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	svcs, err := app.NewServices(cfg, infra, m, log, app.Options{})
	if err != nil {
		return err
	}
	if err := app.EnsureAdmin(ctx, svcs, cfg.Bootstrap, log); err != nil {
		return err
	}

	r, err := app.NewRouter(cfg, svcs, infra, reg, log)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	// In-memory storage cannot be shared with a separate worker process.
	if withWorkers || cfg.Database.Driver == config.DriverMemory {
		workers, err := app.NewWorkers(cfg, svcs, infra, m, log)
		if err != nil {
			return err
		}
		for _, w := range workers {
			w := w
			g.Go(func() error {
				w.Start(gctx)
				return nil
			})
		}
	}

	g.Go(func() error {
		log.Info("starting server", "addr", srv.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
