package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/stockledger/internal/audit"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

func main() {
	from := flag.Int64("from", 1, "first audit sequence to verify")
	to := flag.Int64("to", 0, "last audit sequence to verify (0 = tail)")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "audit-verify", Output: os.Stderr})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(2)
	}

	logg = logger.New(logger.Options{
		ServiceName: "audit-verify",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(2)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	verifier, err := audit.NewService(audit.NewRepository(dbClient.DB()), nil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build audit service", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"from": *from,
		"to":   *to,
	})

	ok, err := run(ctx, verifier, audit.Range{FromSequence: *from, ToSequence: *to}, *asJSON, os.Stdout)
	if err != nil {
		logg.Error(ctx, "audit verification failed to run", err)
		stop()
		os.Exit(2)
	}
	if !ok {
		stop()
		os.Exit(1)
	}
}
