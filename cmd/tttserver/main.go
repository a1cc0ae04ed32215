package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/udisondev/tttserver/internal/config"
	"github.com/udisondev/tttserver/internal/server"
)

const ConfigPath = "config/tttserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("tic-tac-toe server starting")

	if len(args) != 1 {
		return fmt.Errorf("usage: tttserver <port>")
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("parsing port %q: %w", args[0], err)
	}

	cfgPath := ConfigPath
	if p := os.Getenv("TTTSERVER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Port = port // the command-line port argument always wins

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if level != slog.LevelInfo {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})))
	}
	slog.Info("config loaded", "bind", cfg.BindAddress, "port", cfg.Port, "max_name_len", cfg.MaxNameLen,
		"shutdown_grace", time.Duration(cfg.ShutdownGraceSeconds)*time.Second)

	srv := server.New(cfg)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
