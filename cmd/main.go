package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ColeHoward/filedrop/internal/config"
	"github.com/ColeHoward/filedrop/internal/logging"
	"github.com/ColeHoward/filedrop/internal/server"
	"github.com/ColeHoward/filedrop/internal/telemetry"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error running server:", err)
		os.Exit(1)
	}
}

// run starts the server described by args and blocks until ctx is cancelled
// or a signal arrives. a listener that cannot be bound is returned as an error.
func run(ctx context.Context, args []string, console io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		// give exporters a chance to flush
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}()

	logger, closeLog := logging.New(logging.Options{
		Name:    "github.com/ColeHoward/filedrop",
		File:    cfg.LogFile,
		Console: console,
	})
	defer closeLog()

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	logger.Info("server_running", "port", cfg.Port, "root", cfg.Root, "hosts", cfg.Hosts)
	return srv.Serve(ctx)
}
