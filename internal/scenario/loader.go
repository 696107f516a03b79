package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse parses a scenario from YAML bytes.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}

	if sc.ID == "" {
		return nil, &LoadError{
			Message: "scenario ID is required",
		}
	}

	if len(sc.Steps) == 0 {
		return nil, &LoadError{
			Message: "scenario must have at least one step",
		}
	}

	for i, step := range sc.Steps {
		if _, ok := actions[step.Action]; !ok {
			return nil, &LoadError{
				Message: fmt.Sprintf("step %d: unknown action %q", i+1, step.Action),
			}
		}
	}

	return &sc, nil
}

// Load loads a scenario from a file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	sc, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{
			File:    path,
			Message: err.Error(),
		}
	}

	return sc, nil
}

// LoadDirectory loads all scenarios from a directory.
// Only files with .yaml or .yml extensions are loaded.
func LoadDirectory(dir string) ([]*Scenario, error) {
	var scenarios []*Scenario

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{
			File:    dir,
			Message: "failed to read directory",
			Cause:   err,
		}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		sc, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		scenarios = append(scenarios, sc)
	}

	return scenarios, nil
}
