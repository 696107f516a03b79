// Package interactive provides the interactive command-line interface
// for timers-cli.
package interactive

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/worker-timers-go/internal/scenario"
	"github.com/mash-protocol/worker-timers-go/pkg/broker"
	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// Timers is the part of a workertimers.Handle the shell drives.
type Timers interface {
	SetTimeout(fn broker.Func, delay time.Duration, args ...any) uint64
	SetInterval(fn broker.Func, delay time.Duration, args ...any) uint64
	ClearTimeout(timerID uint64)
	ClearInterval(timerID uint64)
	Broker() *broker.Broker
}

// Shell handles interactive mode for timers-cli.
type Shell struct {
	timers Timers
	rl     *readline.Instance

	// ProtocolLogger is handed to scenario runs.
	ProtocolLogger log.Logger

	mu  sync.Mutex
	out io.Writer
}

// New creates a shell with a readline prompt.
func New(timers Timers) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "timers> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(timers, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(timers Timers, out io.Writer) *Shell {
	return &Shell{timers: timers, out: out}
}

// Stdout returns a writer that coordinates with the readline input.
// Use this for log output to avoid interfering with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the interactive command loop. It returns when the user
// quits, input ends or ctx is cancelled.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			s.printf("Exiting...\n")
			cancel()
			return
		}

		if !s.Exec(line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It reports false when the shell should
// exit.
func (s *Shell) Exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "timeout", "t":
		s.cmdSet(wire.TimerTypeTimeout, args)

	case "interval", "i":
		s.cmdSet(wire.TimerTypeInterval, args)

	case "clear-timeout", "ct":
		s.cmdClear(wire.TimerTypeTimeout, args)

	case "clear-interval", "ci":
		s.cmdClear(wire.TimerTypeInterval, args)

	case "status", "s":
		s.cmdStatus()

	case "run":
		s.cmdRun(args)

	case "quit", "exit", "q":
		s.printf("Exiting...\n")
		return false

	default:
		s.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (s *Shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) printHelp() {
	s.printf("%s\n", `
Timer Commands:
  timeout <delay> [label]    - Schedule a one-shot timer
  interval <delay> [label]   - Schedule a repeating timer
  clear-timeout <id>         - Cancel a timeout
  clear-interval <id>        - Cancel an interval
  status                     - Show timers and counters

  Scenarios:
    run <file|dir>           - Run scenario files against a scripted worker

  General:
    help                     - Show this help
    quit                     - Exit

  Delays are Go durations (250ms, 1.5s) or plain milliseconds.`)
}

// ParseDelay parses a duration or a plain number of milliseconds.
func ParseDelay(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q", s)
	}
	return d, nil
}

// ParseTimerID parses a timer id argument.
func ParseTimerID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid timer id %q", s)
	}
	return id, nil
}

func (s *Shell) cmdSet(timerType wire.TimerType, args []string) {
	if len(args) < 1 {
		s.printf("Usage: %s <delay> [label]\n", timerType)
		return
	}
	delay, err := ParseDelay(args[0])
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	label := strings.Join(args[1:], " ")

	// The worker can answer before SetTimeout returns.
	var id atomic.Uint64
	fired := func(args ...any) {
		n := args[0].(*int)
		*n++
		if label != "" {
			s.printf("\n[%s %d] fired (#%d): %s\n", timerType, id.Load(), *n, label)
		} else {
			s.printf("\n[%s %d] fired (#%d)\n", timerType, id.Load(), *n)
		}
	}

	count := new(int)
	switch timerType {
	case wire.TimerTypeInterval:
		id.Store(s.timers.SetInterval(fired, delay, count))
	default:
		id.Store(s.timers.SetTimeout(fired, delay, count))
	}
	if id.Load() == 0 {
		s.printf("Error: broker stopped: %v\n", s.timers.Broker().Err())
		return
	}
	s.printf("Scheduled %s %d (%s)\n", timerType, id.Load(), delay)
}

func (s *Shell) cmdClear(timerType wire.TimerType, args []string) {
	if len(args) != 1 {
		s.printf("Usage: clear-%s <id>\n", timerType)
		return
	}
	id, err := ParseTimerID(args[0])
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if _, ok := s.timers.Broker().Lookup(timerType, id); !ok {
		s.printf("No %s with id %d\n", timerType, id)
		return
	}
	switch timerType {
	case wire.TimerTypeInterval:
		s.timers.ClearInterval(id)
	default:
		s.timers.ClearTimeout(id)
	}
	s.printf("Cleared %s %d\n", timerType, id)
}

func (s *Shell) cmdStatus() {
	b := s.timers.Broker()
	if err := b.Err(); err != nil {
		s.printf("Broker stopped: %v\n", err)
		return
	}

	st := b.Stats()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\n", b.SessionID())
	for _, group := range []struct {
		title     string
		timerType wire.TimerType
	}{
		{"Timeouts", wire.TimerTypeTimeout},
		{"Intervals", wire.TimerTypeInterval},
	} {
		entries := b.Timers(group.timerType)
		fmt.Fprintf(&sb, "%s:\n", group.title)
		if len(entries) == 0 {
			sb.WriteString("  (none)\n")
		}
		for _, id := range slices.Sorted(maps.Keys(entries)) {
			fmt.Fprintf(&sb, "  %-6d %s\n", id, entries[id].State)
		}
	}
	fmt.Fprintf(&sb, "Pending requests: %d (clears: %d)\n", st.PendingRequests, st.PendingClears)
	fmt.Fprintf(&sb, "Fired: %d  Discarded: %d  Rescheduled: %d\n", st.Fired, st.Discarded, st.Rescheduled)
	s.printf("%s", sb.String())
}

func (s *Shell) cmdRun(args []string) {
	if len(args) != 1 {
		s.printf("Usage: run <file|dir>\n")
		return
	}

	scenarios, err := loadScenarios(args[0])
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}

	runner := &scenario.Runner{ProtocolLogger: s.ProtocolLogger}
	suite := runner.RunAll(scenarios)
	for _, res := range suite.Results {
		if res.Passed {
			s.printf("  PASS %s\n", res.Scenario.ID)
		} else {
			s.printf("  FAIL %s: %v\n", res.Scenario.ID, res.Error)
		}
	}
	s.printf("%d passed, %d failed (%s)\n", suite.PassCount, suite.FailCount, suite.Duration.Round(time.Millisecond))
}

func loadScenarios(path string) ([]*scenario.Scenario, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		sc, err := scenario.Load(path)
		if err != nil {
			return nil, err
		}
		return []*scenario.Scenario{sc}, nil
	}
	return scenario.LoadDirectory(path)
}
