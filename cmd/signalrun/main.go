// cmd/signalrun performs one signal run: it fetches bars for every
// configured asset, decides BUY/SELL/HOLD, persists the result and
// notifies about changes. Intended to be scheduled (cron, CI).
//
// Usage:
//
//	go run ./cmd/signalrun --config=config/signals.yaml
//	go run ./cmd/signalrun --test   # compute and print only
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"signal-systemv1/config"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/pipeline"
)

const (
	exitFailure = 1
	exitLocked  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", os.Getenv("SIGNAL_CONFIG"), "Path to YAML config (empty = defaults + env)")
	testMode := flag.Bool("test", false, "Compute and print signals; skip state, logs and notifications")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signalrun: %v\n", err)
		return exitFailure
	}
	log := logger.Init(cfg.Service, cfg.Log)

	svc, err := pipeline.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("init failed")
		return exitFailure
	}
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rep, err := svc.Run(ctx, pipeline.Options{Test: *testMode})
	rep.Print(os.Stdout)

	switch {
	case errors.Is(err, model.ErrRunLocked):
		log.Error().Err(err).Msg("another run holds the lock")
		return exitLocked
	case err != nil:
		log.Error().Err(err).Msg("run failed")
		return exitFailure
	}
	if *testMode && len(rep.Changed) > 0 {
		fmt.Println("\n--- TEST MODE: signals would be sent ---")
		for _, s := range rep.Changed {
			fmt.Println(s.String())
		}
	}
	return 0
}
