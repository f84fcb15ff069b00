/*
main.go - Backend entry point

PURPOSE:
  Starts the yield engine backend: the REST API that serves plans,
  deposits and the overview snapshot, plus the maturity scheduler that
  closes deposits at the end of their accrual window.

STARTUP SEQUENCE:
  1. Load configuration (file, YIELD_* env, then flags)
  2. Initialize SQLite store (migrations applied on open)
  3. Load the rate schedule (rates file or built-in tiers)
  4. Create calculator, handler and maturity scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (default: config.yaml, optional)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database
  -rates   Rate schedule file, .json or .yaml (overrides config)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the maturity scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db=":memory:"
  ./server -config=deploy/yield.yaml -rates=deploy/rates.yaml

SEE ALSO:
  - config/config.go: Configuration fields
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/yield-engine/api"
	"github.com/warp/yield-engine/config"
	"github.com/warp/yield-engine/factory"
	"github.com/warp/yield-engine/plans"
	"github.com/warp/yield-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	ratesFile := flag.String("rates", "", "Rate schedule file (.json or .yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}
	if *ratesFile != "" {
		cfg.Engine.RatesFile = *ratesFile
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.Server.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	schedule := plans.DefaultSchedule()
	if cfg.Engine.RatesFile != "" {
		schedule, err = factory.LoadScheduleFile(cfg.Engine.RatesFile)
		if err != nil {
			log.Fatalf("Failed to load rate schedule: %v", err)
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}

	// Initialize handler
	calc := plans.NewCalculator(schedule, loc)
	handler := api.NewHandler(store, calc)
	handler.Maturity.CheckInterval = cfg.Server.MaturityInterval
	handler.Maturity.Start()
	defer handler.Maturity.Stop()

	router := api.NewRouter(handler, cfg.Server.CORSOrigins...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[Server] Starting on http://localhost:%d (timezone %s, %d rate tiers)",
			cfg.Server.Port, loc, schedule.Len())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")
	handler.Maturity.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("[Server] Stopped")
}
