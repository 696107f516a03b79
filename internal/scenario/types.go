// Package scenario loads YAML broker scenarios and runs them against a
// broker whose worker is scripted by the scenario itself.
//
// A scenario is a list of steps. Each step performs one action (a facade
// call or an inbound worker message) and then checks the step outputs
// named in its expect map:
//
//	id: SC-TIMEOUT-001
//	name: Timeout fires once
//	steps:
//	  - action: set_timeout
//	    params: {timer: t1, delay: 10ms}
//	    expect: {sent_method: set, timer_state: ACTIVE}
//	  - action: fire
//	    params: {timer: t1}
//	    expect: {fired: 1, timer_state: ABSENT, error: none}
package scenario

import (
	"strconv"
	"strings"
)

// Scenario is a single scenario loaded from YAML.
type Scenario struct {
	// ID is the unique scenario identifier (e.g., "SC-CLEAR-002").
	ID string `yaml:"id"`

	// Name is a human-readable name.
	Name string `yaml:"name"`

	// Description explains what the scenario shows.
	Description string `yaml:"description"`

	// Steps are the actions to execute in order.
	Steps []Step `yaml:"steps"`

	// Tags for categorizing scenarios.
	Tags []string `yaml:"tags,omitempty"`
}

// Step is a single action in a scenario.
type Step struct {
	// Action is the action to perform (e.g., "set_interval", "fire").
	Action string `yaml:"action"`

	// Params are parameters for the action.
	Params map[string]any `yaml:"params,omitempty"`

	// Expect maps output keys to their expected values.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Description explains what this step does.
	Description string `yaml:"description,omitempty"`
}

// LoadError provides details about a scenario loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Line > 0 {
		b.WriteString(":" + strconv.Itoa(e.Line))
	}
	b.WriteString(": " + e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
