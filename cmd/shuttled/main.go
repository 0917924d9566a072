// Command shuttled serves the BTC vault bridge API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/shuttle/internal/app"
	"github.com/alanyoungcy/shuttle/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	logFormat := flag.String("log-format", envOr("SHUTTLE_LOG_FORMAT", "json"), "log output: json or text")
	flag.Parse()

	// The level is only known after the config loads.
	var level slog.LevelVar
	logger := newLogger(*logFormat, &level)
	slog.SetDefault(logger)

	if err := run(*configPath, &level, logger); err != nil {
		logger.Error("shuttle exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shuttle stopped")
}

func run(configPath string, level *slog.LevelVar, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level.Set(parseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("shuttle starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = app.New(cfg, logger).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
