package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/guardian/internal/guard"
)

// Scenario defines a concurrency scenario against one store.
// Scenarios run once per backend; every backend must satisfy the same
// assertions and produce the same golden snapshot.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Kind selects the store: counter, cache or inventory.
	Kind string `yaml:"kind"`

	// Backends lists the backends to run on. Empty means all of them.
	Backends []string `yaml:"backends,omitempty"`

	// Initial seeds the store. Only counter (an integer) and inventory
	// (product -> quantity) accept a seed.
	Initial any `yaml:"initial,omitempty"`

	// Setup steps run sequentially before the concurrent phase and must
	// match their expect clause, or succeed if none is given.
	Setup []Step `yaml:"setup,omitempty"`

	// Concurrent steps are all released at once, each Repeat times.
	Concurrent []Step `yaml:"concurrent"`

	// Then steps run sequentially after every concurrent step returned.
	Then []Step `yaml:"then,omitempty"`

	// Assertions validate outcome counts, results and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation against the store.
type Step struct {
	// Op names the operation, e.g. "reserve" or "get".
	Op string `yaml:"op"`

	// Args are the operation arguments, e.g. {product: widget, qty: 2}.
	Args map[string]any `yaml:"args,omitempty"`

	// Repeat runs the step this many times (concurrent steps only).
	// Zero means once.
	Repeat int `yaml:"repeat,omitempty"`

	// Expect validates every execution of this step. Optional.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Times returns how many times the step runs.
func (s Step) Times() int {
	if s.Repeat <= 0 {
		return 1
	}
	return s.Repeat
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Case is the expected outcome case ("Success", "InsufficientStock", ...).
	Case string `yaml:"case"`

	// Result is the expected result. Omitted means not checked.
	Result any `yaml:"result,omitempty"`
}

// Assertion validates the outcome of a scenario run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "case_count": op finished with case exactly Count times
	// - "result_in": every successful op result is one of Results
	// - "final_state": the final store state equals Expect
	Type string `yaml:"type"`

	// Op is the operation name (case_count, result_in).
	Op string `yaml:"op,omitempty"`

	// Case is the outcome case (case_count).
	Case string `yaml:"case,omitempty"`

	// Count is the expected number of occurrences (case_count).
	Count int `yaml:"count,omitempty"`

	// Results are the allowed results (result_in).
	Results []any `yaml:"results,omitempty"`

	// Expect is the expected final state (final_state).
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCaseCount  = "case_count"
	AssertResultIn   = "result_in"
	AssertFinalState = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields to catch typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by path.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string)
	for _, path := range paths {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, ok := seen[sc.Name]; ok {
			return nil, fmt.Errorf("%s: duplicate scenario name %q (also in %s)", path, sc.Name, prev)
		}
		seen[sc.Name] = path
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// BackendKinds returns the backends the scenario runs on.
func (s *Scenario) BackendKinds() []guard.Backend {
	if len(s.Backends) == 0 {
		return guard.Backends
	}
	out := make([]guard.Backend, 0, len(s.Backends))
	for _, name := range s.Backends {
		b, _ := guard.ParseBackend(name) // validated on load
		out = append(out, b)
	}
	return out
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\ `) {
		return fmt.Errorf("name %q must not contain slashes or spaces", s.Name)
	}

	ops, ok := opNames[s.Kind]
	if !ok {
		return fmt.Errorf("unknown kind %q (want counter, cache or inventory)", s.Kind)
	}

	for i, name := range s.Backends {
		if _, err := guard.ParseBackend(name); err != nil {
			return fmt.Errorf("backends[%d]: %w", i, err)
		}
	}

	if len(s.Concurrent) == 0 {
		return fmt.Errorf("concurrent must have at least one step")
	}

	phases := []struct {
		name  string
		steps []Step
	}{
		{"setup", s.Setup},
		{"concurrent", s.Concurrent},
		{"then", s.Then},
	}
	for _, phase := range phases {
		for i, step := range phase.steps {
			if !ops[step.Op] {
				return fmt.Errorf("%s[%d]: unknown %s op %q", phase.name, i, s.Kind, step.Op)
			}
			if step.Repeat < 0 {
				return fmt.Errorf("%s[%d]: repeat must be non-negative", phase.name, i)
			}
			if step.Repeat > 0 && phase.name != "concurrent" {
				return fmt.Errorf("%s[%d]: repeat is only allowed in concurrent steps", phase.name, i)
			}
			if step.Expect != nil && step.Expect.Case == "" {
				return fmt.Errorf("%s[%d]: expect.case is required", phase.name, i)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, i, ops); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int, ops map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCaseCount:
		if !ops[a.Op] {
			return fmt.Errorf("assertions[%d]: unknown op %q for case_count", index, a.Op)
		}
		if a.Case == "" {
			return fmt.Errorf("assertions[%d]: case is required for case_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for case_count", index)
		}
	case AssertResultIn:
		if !ops[a.Op] {
			return fmt.Errorf("assertions[%d]: unknown op %q for result_in", index, a.Op)
		}
		if len(a.Results) == 0 {
			return fmt.Errorf("assertions[%d]: results list is required for result_in", index)
		}
	case AssertFinalState:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
