package workertimers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/transport"
	"github.com/mash-protocol/worker-timers-go/pkg/worker"
)

// ErrWorkerExitTimeout is returned by Close when a worker process does
// not exit within CloseTimeout and had to be killed.
var ErrWorkerExitTimeout = errors.New("worker process did not exit")

// LoadInProcess starts a worker in this process, connected to the broker
// through an in-memory pipe.
func LoadInProcess(cfg Config) (*Handle, error) {
	cfg = cfg.withDefaults()
	sessionID := uuid.NewString()

	brokerConn, workerConn := transport.Pipe(
		cfg.connConfig(sessionID, log.RoleBroker),
		cfg.connConfig(sessionID, log.RoleWorker),
	)

	w, err := worker.New(worker.Config{
		Sender:         workerConn,
		NotifyFires:    cfg.NotifyFires,
		SessionID:      sessionID,
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
	})
	if err != nil {
		return nil, err
	}
	if err := workerConn.Serve(w); err != nil {
		return nil, err
	}

	return wrap(brokerConn, cfg, func() error {
		w.Close()
		return workerConn.Close()
	})
}

// Load starts the worker executable at path with args and speaks the
// timer protocol over its stdin and stdout. The worker's stderr is
// passed through. Cancelling ctx kills the process.
func Load(ctx context.Context, path string, args []string, cfg Config) (*Handle, error) {
	cfg = cfg.withDefaults()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", path, err)
	}
	cfg.Logger.Debug("worker process started", "path", path, "pid", cmd.Process.Pid)

	conn := transport.NewConn(transport.Duplex(stdout, stdin), cfg.connConfig(uuid.NewString(), log.RoleBroker))

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	h, err := wrap(conn, cfg, func() error {
		return waitExit(cmd, exited, cfg.CloseTimeout)
	})
	if err != nil {
		_ = cmd.Process.Kill()
		<-exited
		return nil, err
	}
	return h, nil
}

// waitExit waits for the worker to exit after its stdin was closed.
func waitExit(cmd *exec.Cmd, exited <-chan error, timeout time.Duration) error {
	select {
	case err := <-exited:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("worker process: %w", err)
		}
		return nil
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		<-exited
		return ErrWorkerExitTimeout
	}
}

// ServeWorker runs a worker over the stream rw until the broker closes
// it or ctx is cancelled.
func ServeWorker(ctx context.Context, rw io.ReadWriteCloser, cfg Config) error {
	cfg = cfg.withDefaults()
	sessionID := uuid.NewString()

	conn := transport.NewConn(rw, cfg.connConfig(sessionID, log.RoleWorker))
	w, err := worker.New(worker.Config{
		Sender:         conn,
		NotifyFires:    cfg.NotifyFires,
		SessionID:      sessionID,
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := conn.Serve(w); err != nil {
		return err
	}

	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close()
	}
	return conn.Err()
}
