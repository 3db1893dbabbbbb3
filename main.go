package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/checkpoint"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/config"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/dispatch"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/hub"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/judge"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/phase"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/registry"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/repository"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/telemetry"
	v1 "github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/transport/http/v1"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/transport/ws"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/policy"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting sprint orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Agents file: %s", cfg.AgentsFile)

	// Initialize store
	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	// Initialize agent registry
	reg := registry.New()
	if err := reg.LoadFile(cfg.AgentsFile); err != nil {
		log.Printf("WARN: could not load agents file: %v", err)
	}
	if len(reg.EnabledNames()) == 0 {
		log.Printf("WARN: no enabled agents registered; dispatches will be empty")
	}

	// Initialize telemetry
	ring := telemetry.NewRingBuffer(cfg.TelemetryRingSize)
	appendLog := telemetry.NewAppendLog(cfg.TelemetryLogPath, cfg.TelemetryFlushBytes, cfg.TelemetryFlushInterval)
	defer appendLog.Close()
	var reg2 prometheus.Registerer
	if cfg.MetricsEnabled {
		reg2 = prometheus.DefaultRegisterer
	}
	metrics := telemetry.NewMetrics(reg2)
	collector := telemetry.NewCollector(ring, appendLog, metrics)

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize orchestration core
	dispatcher := dispatch.New(reg, collector, dispatch.Options{
		DefaultTimeout: cfg.AgentTimeout,
		CLIGrace:       cfg.CLIGrace,
		Policy:         policyEngine,
	})
	selector := judge.NewSelector(dispatcher, cfg.JudgeAgent, cfg.JudgeTimeout)
	checkpoints := checkpoint.NewStore(cfg.MaxCheckpoints, store)
	eventHub := hub.New()
	runner := phase.NewRunner(store, checkpoints, dispatcher, selector, collector, eventHub, reg, phase.Config{
		MaxRetries: cfg.MaxRetries,
		JudgeName:  cfg.JudgeAgent,
	})

	// Initialize handlers
	h := v1.NewHandler(store, runner, checkpoints, reg)
	wsServer := ws.NewServer(eventHub)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)
	wsServer.RegisterRoutes(e)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}
	collector.Flush()

	log.Println("Orchestrator stopped")
}
