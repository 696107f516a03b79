// Command timers-worker is the timer worker executable.
//
// It speaks the timer protocol over stdin and stdout and keeps the
// timers a broker asks for. Brokers start it through workertimers.Load;
// timers-cli does so when run with -worker.
//
// Usage:
//
//	timers-worker [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-notify-fires         Report fires as call notifications
//
// Operational logs go to stderr; stdout carries protocol frames only.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mash-protocol/worker-timers-go/internal/config"
	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/transport"
	"github.com/mash-protocol/worker-timers-go/pkg/workertimers"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	notifyFires = flag.Bool("notify-fires", false, "Report fires as call notifications")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "timers-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *protocolLog != "" {
		cfg.ProtocolLog = *protocolLog
	}
	if *notifyFires {
		cfg.Worker.NotifyFires = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	hc := cfg.HandleConfig()
	hc.Logger = logger

	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		hc.ProtocolLogger = fl
		logger.Info("protocol logging enabled", "path", cfg.ProtocolLog)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("worker started", "pid", os.Getpid())
	err := workertimers.ServeWorker(ctx, transport.Duplex(os.Stdin, os.Stdout), hc)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Debug("worker stopped")
	return nil
}
