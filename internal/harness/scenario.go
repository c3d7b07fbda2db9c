package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance test: definitions to load, state to seed,
// inputs to deliver, and assertions over what the engine emitted.
type Scenario struct {
	// Name uniquely identifies the scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Defs lists CUE definition files, relative to the scenario file.
	Defs []string `yaml:"defs"`

	// Flows supplies fixed flow tokens for completions that arrive
	// without one. Optional; defaults are generated deterministically.
	Flows []string `yaml:"flows,omitempty"`

	// State seeds relations queried by where clauses.
	State []StateSeed `yaml:"state,omitempty"`

	// Steps are delivered to the engine in order.
	Steps []Step `yaml:"steps"`

	// Assertions run after all steps.
	Assertions []Assertion `yaml:"assertions"`
}

// StateSeed populates one relation before any step runs. Column names
// come from the first row's keys; every row must use the same keys.
type StateSeed struct {
	Relation string           `yaml:"relation"`
	Rows     []map[string]any `yaml:"rows"`
}

// Step is one input to the engine. Exactly one field is set.
type Step struct {
	Complete     *CompletionStep   `yaml:"complete,omitempty"`
	Availability *AvailabilityStep `yaml:"availability,omitempty"`
}

// CompletionStep delivers one action completion.
type CompletionStep struct {
	Concept string         `yaml:"concept"`
	Action  string         `yaml:"action"`
	Variant string         `yaml:"variant"`
	Input   map[string]any `yaml:"input,omitempty"`
	Output  map[string]any `yaml:"output,omitempty"`
	Flow    string         `yaml:"flow,omitempty"`
}

// AvailabilityStep toggles a concept's availability.
type AvailabilityStep struct {
	Concept   string `yaml:"concept"`
	Available bool   `yaml:"available"`
}

// Assertion validates the emitted invocations or the firing ledger.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Concept and Action select invocations (emitted_contains).
	Concept string `yaml:"concept,omitempty"`
	Action  string `yaml:"action,omitempty"`

	// Input is a subset match on the invocation input (emitted_contains).
	Input map[string]any `yaml:"input,omitempty"`

	// Actions is the expected "concept.action" order (emitted_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected occurrence count (emitted_count,
	// firing_count).
	Count int `yaml:"count"`

	// Sync and Flow select ledger firings (firing_count).
	Sync string `yaml:"sync,omitempty"`
	Flow string `yaml:"flow,omitempty"`
}

// Assertion type constants.
const (
	AssertEmittedContains = "emitted_contains"
	AssertEmittedOrder    = "emitted_order"
	AssertEmittedCount    = "emitted_count"
	AssertFiringCount     = "firing_count"
)

// LoadScenario reads and parses a scenario YAML file. Definition paths
// are resolved relative to the scenario file's directory. Unknown YAML
// fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	base := filepath.Dir(path)
	for i, def := range scenario.Defs {
		if !filepath.IsAbs(def) {
			scenario.Defs[i] = filepath.Join(base, def)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Defs) == 0 {
		return fmt.Errorf("defs list is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required")
	}

	for _, def := range s.Defs {
		if _, err := os.Stat(def); os.IsNotExist(err) {
			return fmt.Errorf("definition file not found: %s", def)
		}
	}

	for i, seed := range s.State {
		if seed.Relation == "" {
			return fmt.Errorf("state[%d]: relation is required", i)
		}
		if len(seed.Rows) == 0 {
			return fmt.Errorf("state[%d]: rows list is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	set := 0
	if step.Complete != nil {
		set++
		c := step.Complete
		if c.Concept == "" || c.Action == "" || c.Variant == "" {
			return fmt.Errorf("steps[%d].complete: concept, action, and variant are required", index)
		}
	}
	if step.Availability != nil {
		set++
		if step.Availability.Concept == "" {
			return fmt.Errorf("steps[%d].availability: concept is required", index)
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of complete or availability is required", index)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertEmittedContains:
		if a.Concept == "" || a.Action == "" {
			return fmt.Errorf("assertions[%d]: concept and action are required for %s", index, a.Type)
		}
	case AssertEmittedOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for %s", index, a.Type)
		}
	case AssertEmittedCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFiringCount:
		if a.Sync == "" || a.Flow == "" {
			return fmt.Errorf("assertions[%d]: sync and flow are required for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
