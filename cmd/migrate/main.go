// Package main runs schema migrations against DATABASE_URL.
//
// Usage:
//
//	migrate [up|down|status]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/usercache/usercache/internal/logging"
	"github.com/usercache/usercache/internal/migrations"
)

// config is the subset of the server configuration the migrator needs.
type config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`
}

var errUsage = errors.New("usage: migrate [up|down|status]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	command, err := parseCommand(args)
	if err != nil {
		return err
	}

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	db, err := migrations.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := migrations.NewRunner(db, logger)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	default:
		return runner.Status(ctx)
	}
}

// parseCommand returns the subcommand, defaulting to up.
func parseCommand(args []string) (string, error) {
	if len(args) == 0 {
		return "up", nil
	}
	if len(args) > 1 {
		return "", errUsage
	}
	switch args[0] {
	case "up", "down", "status":
		return args[0], nil
	default:
		return "", fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}
