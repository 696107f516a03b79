// Command timers-cli is an interactive shell for scheduling timers
// through a worker.
//
// Without -worker the worker runs in-process over an in-memory pipe.
// With -worker the given executable (normally timers-worker) is started
// and the timer protocol runs over its stdin and stdout.
//
// Usage:
//
//	timers-cli [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-worker string        Worker executable (default: in-process worker)
//	-notify-fires         Ask the in-process worker for call notifications
//
// Examples:
//
//	# In-process worker
//	timers-cli
//
//	# External worker with a protocol capture
//	timers-cli -worker ./timers-worker -protocol-log session.tlog
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mash-protocol/worker-timers-go/cmd/timers-cli/interactive"
	"github.com/mash-protocol/worker-timers-go/internal/config"
	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/workertimers"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	workerPath  = flag.String("worker", "", "Worker executable (default: in-process worker)")
	notifyFires = flag.Bool("notify-fires", false, "Ask the in-process worker for call notifications")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *protocolLog != "" {
		cfg.ProtocolLog = *protocolLog
	}
	if *workerPath != "" {
		cfg.Worker.Path = *workerPath
	}
	if *notifyFires {
		cfg.Worker.NotifyFires = true
	}
	return cfg, cfg.Validate()
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	hc := cfg.HandleConfig()
	hc.Logger = logger
	hc.OnError = func(err error) {
		logger.Error("timer session failed", "error", err)
	}

	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		hc.ProtocolLogger = fl
		logger.Info("protocol logging enabled", "path", cfg.ProtocolLog)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var h *workertimers.Handle
	if cfg.Worker.Path != "" {
		h, err = workertimers.Load(ctx, cfg.Worker.Path, cfg.Worker.Args, hc)
	} else {
		h, err = workertimers.LoadInProcess(hc)
	}
	if err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer h.Close()

	shell, err := interactive.New(h)
	if err != nil {
		return err
	}
	shell.ProtocolLogger = hc.ProtocolLogger

	go func() {
		select {
		case <-h.Done():
			fmt.Fprintf(shell.Stderr(), "\nworker session ended: %v\n", h.Err())
		case <-ctx.Done():
		}
	}()

	shell.Run(ctx, cancel)
	return nil
}
