/*
main.go - Live profit ticker

PURPOSE:
  Runs the live reconciliation controller against a backend and prints the
  displayed net profit on every tick. Between syncs the figure advances
  from the last snapshot at the accrual rate of the active deposits; every
  sync interval it is replaced by the backend's authoritative value.

COMMAND-LINE FLAGS:
  -config  YAML config file (default: config.yaml, optional)
  -backend Backend API base URL (overrides config)
  -user    User to follow (overrides config)
  -quiet   Only log syncs, not every tick

EXAMPLES:
  ./ticker -backend=http://localhost:8080/api -user=investor-1

SEE ALSO:
  - live/controller.go: The controller
  - backend/client.go: Overview client
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/backend"
	"github.com/warp/yield-engine/config"
	"github.com/warp/yield-engine/factory"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/live"
	"github.com/warp/yield-engine/plans"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML config file")
	backendURL := flag.String("backend", "", "Backend API base URL")
	userID := flag.String("user", "", "User to follow")
	quiet := flag.Bool("quiet", false, "Only log syncs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *backendURL != "" {
		cfg.Ticker.BackendURL = *backendURL
	}
	if *userID != "" {
		cfg.Ticker.UserID = *userID
	}
	if err := cfg.ValidateTicker(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

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

	logger := log.New(os.Stdout, "[Live] ", log.LstdFlags)
	client := backend.NewClient(cfg.Ticker.BackendURL, cfg.Ticker.Token)

	opts := []live.Option{
		live.WithLogger(logger),
		live.WithTickInterval(cfg.Ticker.TickInterval),
		live.WithSyncInterval(cfg.Ticker.SyncInterval),
		live.WithOnSyncError(func(err error) {
			if generic.IsRetryable(err) {
				logger.Printf("Backend unavailable, keeping last snapshot: %v", err)
				return
			}
			logger.Printf("Sync failed: %v", err)
		}),
	}
	if !*quiet {
		opts = append(opts, live.WithOnTick(func(v decimal.Decimal) {
			logger.Printf("net profit %s", v.StringFixed(2))
		}))
	}

	ctl := live.NewController(client, generic.UserID(cfg.Ticker.UserID), plans.NewCalculator(schedule, loc), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctl.Start(ctx); errors.Is(err, live.ErrSchedule) {
		log.Fatalf("Failed to start live ticker: %v", err)
	} else if err != nil {
		logger.Printf("Initial sync failed, retrying every %v: %v", cfg.Ticker.SyncInterval, err)
	} else if snap, ok := ctl.Snapshot(); ok {
		logger.Printf("Following %s: capital %s, net profit %s, %d deposits",
			cfg.Ticker.UserID, snap.Capital.StringFixed(2), snap.NetProfit.StringFixed(2), len(snap.Deposits))
		if left, ok := ctl.Countdown(); ok {
			logger.Printf("Latest deposit matures in %v", left)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("Stopping at net profit %s, portfolio %s",
		ctl.DisplayedNetProfit().StringFixed(2), ctl.TotalPortfolio().StringFixed(2))
	ctl.Stop()
}
