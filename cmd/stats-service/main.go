package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/reqflow/reqflow-backend/internal/request/events"
	"github.com/reqflow/reqflow-backend/internal/request/repository"
	"github.com/reqflow/reqflow-backend/internal/request/service"
	"github.com/reqflow/reqflow-backend/pkg/config"
	"github.com/reqflow/reqflow-backend/pkg/logger"
	"github.com/reqflow/reqflow-backend/pkg/messaging"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation("stats-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stats-service", cfg.Server.Environment)
	log.Info().Msg("starting Stats Service")

	// Build the region router over the configured tenant databases
	registry := region.NewRegistry(cfg.RegionDSNs)
	router := region.NewRouter(registry, &cfg.Database, log)
	defer router.CloseAll()

	// Connect to RabbitMQ; the recompute loop itself never publishes,
	// but workflow calls through this service do. In development an
	// unreachable broker downgrades to a warning and events are skipped.
	var publisher *events.RequestEventPublisher
	if rmq, err := messaging.New(&cfg.RabbitMQ, log); err != nil {
		if brokerRequired(cfg.Server.Environment) {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		log.Warn().Err(err).Msg("RabbitMQ unreachable, event publishing disabled")
	} else {
		defer rmq.Close()

		publisher, err = events.NewRequestEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	// Initialize service
	workflowService := service.NewWorkflowService(
		repository.NewRequestRepository(router),
		repository.NewTransitionRepository(router),
		repository.NewAuditRepository(router),
		repository.NewInboxRepository(router),
		repository.NewTimeTrackingRepository(router),
		repository.NewStatisticsRepository(router),
		publisher,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Recompute loop
	go recomputeLoop(ctx, workflowService, registry.Codes(), cfg.Stats.RecomputeInterval, log)

	// Create router
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		healthy := true
		for _, pool := range router.Health(req.Context()) {
			if pool["status"] != "up" {
				healthy = false
			}
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, `{"status":%q,"regions":%d}`, statusWord(healthy), len(registry.Codes()))
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down stats service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("stats service stopped")
}

// recomputeLoop rebuilds yesterday's and today's daily rollups for every
// region on each tick. Yesterday is included so intervals closed after
// midnight still land in the right date's measures.
func recomputeLoop(ctx context.Context, svc *service.WorkflowService, regions []string, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	recompute := func() {
		now := time.Now().UTC()
		for _, code := range regions {
			for _, date := range []time.Time{now.AddDate(0, 0, -1), now} {
				if _, err := svc.RecomputeDailyStatistics(ctx, code, date); err != nil {
					log.Error().Err(err).Str("region", code).Time("date", date).Msg("daily statistics recompute failed")
				}
			}
		}
	}

	recompute()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recompute()
		}
	}
}

// brokerRequired reports whether a failed broker connection is fatal.
// Outside development the workflow events must reach the exchange.
func brokerRequired(environment string) bool {
	return environment != config.EnvDevelopment
}

func statusWord(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "degraded"
}
