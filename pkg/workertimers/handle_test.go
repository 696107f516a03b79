package workertimers

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/worker-timers-go/pkg/broker"
	"github.com/mash-protocol/worker-timers-go/pkg/transport"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func loadInProcess(t *testing.T, cfg Config) *Handle {
	t.Helper()
	h, err := LoadInProcess(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestLoadInProcessTimeout(t *testing.T) {
	for _, notify := range []bool{false, true} {
		h := loadInProcess(t, Config{NotifyFires: notify})

		got := make(chan []any, 1)
		id := h.SetTimeout(func(args ...any) { got <- args }, 5*time.Millisecond, "a", 1)
		assert.NotZero(t, id)

		select {
		case args := <-got:
			assert.Equal(t, []any{"a", 1}, args)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout never fired (notify=%v)", notify)
		}
		waitFor(t, func() bool { return len(h.Broker().Timers(wire.TimerTypeTimeout)) == 0 }, "timeout entry not removed")
		assert.NoError(t, h.Err())
	}
}

func TestLoadInProcessInterval(t *testing.T) {
	h := loadInProcess(t, Config{})

	var fired atomic.Int32
	id := h.SetInterval(func(...any) { fired.Add(1) }, 2*time.Millisecond)
	waitFor(t, func() bool { return fired.Load() >= 3 }, "interval did not repeat")

	h.ClearInterval(id)
	waitFor(t, func() bool { return len(h.Broker().Timers(wire.TimerTypeInterval)) == 0 }, "clear not acknowledged")

	after := fired.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, fired.Load(), "interval fired after its clear was acknowledged")
	assert.NoError(t, h.Err())
}

func TestLoadInProcessClearTimeoutBeforeFire(t *testing.T) {
	h := loadInProcess(t, Config{})

	var fired atomic.Bool
	id := h.SetTimeout(func(...any) { fired.Store(true) }, 30*time.Millisecond)
	h.ClearTimeout(id)

	waitFor(t, func() bool { return h.Broker().Stats().PendingRequests == 0 }, "clear not acknowledged")
	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.NoError(t, h.Err())
}

func TestCloseStopsHandle(t *testing.T) {
	h, err := LoadInProcess(Config{})
	require.NoError(t, err)

	h.SetTimeout(func(...any) { t.Error("fired after Close") }, 20*time.Millisecond)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.ErrorIs(t, h.Err(), broker.ErrClosed)
	assert.Zero(t, h.SetTimeout(func(...any) {}, time.Millisecond))
	time.Sleep(40 * time.Millisecond)
}

func TestWrapReportsDisconnect(t *testing.T) {
	local, remote := transport.Pipe(transport.DefaultConnConfig(), transport.DefaultConnConfig())
	require.NoError(t, remote.Serve(transport.HandlerFunc(func([]byte) error { return nil })))

	reported := make(chan error, 1)
	h, err := Wrap(local, Config{OnError: func(err error) { reported <- err }})
	require.NoError(t, err)
	defer h.Close()

	assert.NotZero(t, h.SetTimeout(func(...any) {}, time.Hour))
	remote.Close()

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
	<-h.Done()
	assert.ErrorIs(t, h.Err(), ErrDisconnected)
	assert.Empty(t, h.Broker().Timers(wire.TimerTypeTimeout))
}

func TestWrapClosesConnOnViolation(t *testing.T) {
	local, remote := transport.Pipe(transport.DefaultConnConfig(), transport.DefaultConnConfig())
	require.NoError(t, remote.Serve(transport.HandlerFunc(func([]byte) error { return nil })))
	defer remote.Close()

	h, err := Wrap(local, Config{})
	require.NoError(t, err)
	defer h.Close()

	data, err := wire.EncodeClearResponse(42, true)
	require.NoError(t, err)
	require.NoError(t, remote.Send(data))

	select {
	case <-local.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection left open after protocol violation")
	}
	assert.ErrorIs(t, h.Err(), broker.ErrUndefinedState)
}

func TestWrapRejectsServedConn(t *testing.T) {
	local, remote := transport.Pipe(transport.DefaultConnConfig(), transport.DefaultConnConfig())
	defer remote.Close()
	defer local.Close()
	require.NoError(t, local.Serve(transport.HandlerFunc(func([]byte) error { return nil })))

	_, err := Wrap(local, Config{})
	assert.ErrorIs(t, err, transport.ErrAlreadyServing)
}

// TestHelperWorker is not a real test. Load tests re-execute the test
// binary with WORKERTIMERS_HELPER=1 to get a worker process on stdio.
func TestHelperWorker(t *testing.T) {
	if os.Getenv("WORKERTIMERS_HELPER") != "1" {
		t.Skip("helper process")
	}
	err := ServeWorker(context.Background(), transport.Duplex(os.Stdin, os.Stdout), Config{})
	if err != nil && !errors.Is(err, io.EOF) {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestLoadWorkerProcess(t *testing.T) {
	t.Setenv("WORKERTIMERS_HELPER", "1")

	h, err := Load(context.Background(), os.Args[0], []string{"-test.run=^TestHelperWorker$"}, Config{})
	require.NoError(t, err)

	got := make(chan struct{}, 1)
	h.SetTimeout(func(...any) { got <- struct{}{} }, 5*time.Millisecond)
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout never fired in worker process")
	}

	assert.NoError(t, h.Close())
	assert.ErrorIs(t, h.Err(), broker.ErrClosed)
}

func TestLoadMissingExecutable(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/timers-worker", nil, Config{})
	assert.Error(t, err)
}
