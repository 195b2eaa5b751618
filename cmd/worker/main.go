package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/bloodbank/internal/app"
	"github.com/jwalitptl/bloodbank/internal/config"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	healthAddr := flag.String("health-addr", ":8081", "address for health and metrics endpoints")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Fatal().Msg("The worker needs shared storage; run the api with the memory driver instead")
	}

	workerLog := logger.NewLogger(cfg.Log.ToLoggerConfig()).WithFields(map[string]interface{}{"component": "worker"})
	if err := run(cfg, workerLog, *healthAddr); err != nil {
		workerLog.Fatal(err, "Worker exited with error")
	}
	workerLog.Info("Worker stopped")
}

func run(cfg *config.Config, log *logger.Logger, healthAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "bloodbank", "worker")

	infra, err := app.OpenInfra(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	svcs, err := app.NewServices(cfg, infra, m, log, app.Options{})
	if err != nil {
		return err
	}
	workers, err := app.NewWorkers(cfg, svcs, infra, m, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			w.Start(gctx)
			return nil
		})
	}

	srv := healthServer(healthAddr, reg, infra)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func healthServer(addr string, reg *prometheus.Registry, infra *app.Infra) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range infra.Checks {
			if err := check(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
