package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/broker"
	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/timerstate"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// Result is the outcome of one scenario.
type Result struct {
	// Scenario is the scenario that was executed.
	Scenario *Scenario

	// Passed indicates if all steps passed.
	Passed bool

	// Error is the error of the first failed step, if any.
	Error error

	// Steps contains the results of the executed steps.
	Steps []*StepResult

	// Duration is how long the scenario took.
	Duration time.Duration
}

// StepResult is the outcome of one step.
type StepResult struct {
	// Step is the step that was executed.
	Step *Step

	// Index is the index of this step (0-based).
	Index int

	// Passed indicates if the action succeeded and every expectation held.
	Passed bool

	// Error is the error that caused failure, if any.
	Error error

	// Outputs are the values observed after the action.
	Outputs map[string]any
}

// SuiteResult is the outcome of several scenarios.
type SuiteResult struct {
	Results   []*Result
	PassCount int
	FailCount int
	Duration  time.Duration
}

// Runner executes scenarios. Each scenario gets a fresh broker.
type Runner struct {
	// Logger receives the broker's operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives the broker's protocol events.
	ProtocolLogger log.Logger
}

// Run executes a single scenario and stops at the first failing step.
func (r *Runner) Run(sc *Scenario) *Result {
	start := time.Now()
	result := &Result{Scenario: sc, Passed: true}

	x, err := r.newExecution()
	if err != nil {
		result.Passed = false
		result.Error = err
		return result
	}
	defer x.broker.Close()

	for i := range sc.Steps {
		sr := x.step(&sc.Steps[i], i)
		result.Steps = append(result.Steps, sr)
		if !sr.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("step %d (%s): %w", i+1, sr.Step.Action, sr.Error)
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

// RunAll executes every scenario.
func (r *Runner) RunAll(scenarios []*Scenario) *SuiteResult {
	start := time.Now()
	suite := &SuiteResult{}
	for _, sc := range scenarios {
		res := r.Run(sc)
		suite.Results = append(suite.Results, res)
		if res.Passed {
			suite.PassCount++
		} else {
			suite.FailCount++
		}
	}
	suite.Duration = time.Since(start)
	return suite
}

// recorder is the scripted worker's inbox: it keeps every message the
// broker sends.
type recorder struct {
	mu   sync.Mutex
	sent [][]byte
}

func (rec *recorder) Send(data []byte) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.sent = append(rec.sent, append([]byte(nil), data...))
	return nil
}

func (rec *recorder) since(n int) [][]byte {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.sent[n:]
}

// execution is the state of one running scenario.
type execution struct {
	broker *broker.Broker
	sender *recorder

	timers    map[string]wire.TimerRef
	fired     map[string]int
	lastSet   map[wire.TimerRef]uint64
	lastClear map[wire.TimerRef]uint64

	seen    int
	newSent []*wire.Request
}

func (r *Runner) newExecution() (*execution, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rec := &recorder{}
	b, err := broker.New(broker.Config{
		Sender:         rec,
		Logger:         logger,
		ProtocolLogger: r.ProtocolLogger,
	})
	if err != nil {
		return nil, err
	}
	return &execution{
		broker:    b,
		sender:    rec,
		timers:    make(map[string]wire.TimerRef),
		fired:     make(map[string]int),
		lastSet:   make(map[wire.TimerRef]uint64),
		lastClear: make(map[wire.TimerRef]uint64),
	}, nil
}

func (x *execution) step(step *Step, index int) *StepResult {
	sr := &StepResult{Step: step, Index: index}

	action, ok := actions[step.Action]
	if !ok {
		sr.Error = fmt.Errorf("unknown action: %s", step.Action)
		return sr
	}
	if err := action(x, step); err != nil {
		sr.Error = err
		return sr
	}

	if err := x.collect(); err != nil {
		sr.Error = err
		return sr
	}
	sr.Outputs = x.outputs(step)

	sr.Passed = true
	for key, expected := range step.Expect {
		actual, exists := sr.Outputs[key]
		if !exists {
			sr.Passed = false
			sr.Error = fmt.Errorf("expectation failed: %s - key not found in outputs", key)
			break
		}
		if fmt.Sprintf("%v", expected) != fmt.Sprintf("%v", actual) {
			sr.Passed = false
			sr.Error = fmt.Errorf("expectation failed: %s - expected %v, got %v", key, expected, actual)
			break
		}
	}
	return sr
}

// collect decodes the messages sent since the previous step and records
// the latest request id per timer.
func (x *execution) collect() error {
	x.newSent = x.newSent[:0]
	for _, data := range x.sender.since(x.seen) {
		x.seen++
		req, err := wire.DecodeRequest(data)
		if err != nil {
			return fmt.Errorf("broker sent undecodable message: %w", err)
		}
		switch req.Method {
		case wire.MethodSet:
			p, err := req.SetParams()
			if err != nil {
				return fmt.Errorf("broker sent invalid set request: %w", err)
			}
			x.lastSet[p.Ref()] = req.ID
		case wire.MethodClear:
			ref, err := req.ClearParams()
			if err != nil {
				return fmt.Errorf("broker sent invalid clear request: %w", err)
			}
			x.lastClear[ref] = req.ID
		default:
			return fmt.Errorf("broker sent unknown method %q", req.Method)
		}
		x.newSent = append(x.newSent, req)
	}
	return nil
}

// outputs lists the values expectations can check after a step.
func (x *execution) outputs(step *Step) map[string]any {
	methods := make([]string, 0, len(x.newSent))
	for _, req := range x.newSent {
		methods = append(methods, req.Method)
	}
	sentMethod := ""
	if len(methods) > 0 {
		sentMethod = methods[len(methods)-1]
	}

	stats := x.broker.Stats()
	out := map[string]any{
		"sent":             len(x.newSent),
		"sent_method":      sentMethod,
		"sent_methods":     methods,
		"error":            errorKind(x.broker.Err()),
		"active_timeouts":  stats.ActiveTimeouts,
		"active_intervals": stats.ActiveIntervals,
		"pending_requests": stats.PendingRequests,
		"pending_clears":   stats.PendingClears,
		"discarded":        stats.Discarded,
		"rescheduled":      stats.Rescheduled,
	}

	if name, ok := step.Params["timer"].(string); ok {
		if ref, ok := x.timers[name]; ok {
			state := timerstate.State(0)
			if e, ok := x.broker.Lookup(ref.TimerType, ref.TimerID); ok {
				state = e.State
			}
			out["timer_state"] = state.String()
			out["fired"] = x.fired[name]
			out["timer_id"] = ref.TimerID
		}
	}
	return out
}

// errorKind names the class of err for expectations.
func errorKind(err error) string {
	var remote *broker.RemoteError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, broker.ErrUndefinedState):
		return "undefined_state"
	case errors.As(err, &remote):
		return "remote"
	case errors.Is(err, broker.ErrClosed):
		return "closed"
	case errors.Is(err, wire.ErrUnknownMessage):
		return "unknown_message"
	default:
		return "failed"
	}
}
