// Package types contains shared types used across the sim-acceptor regression framework
package types

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Default toolchain values applied when the manifest leaves them unset.
// They match the stock Icarus Verilog rig the canonical testbenches target.
const (
	DefaultCompiler  = "iverilog"
	DefaultArtifact  = "soc_sim"
	DefaultSimulator = "vvp"
	DefaultPlusArg   = "TESTNAME"
)

// DefaultCompileFlags returns the compiler flags used when the manifest sets none
func DefaultCompileFlags() []string {
	return []string{"-g2005-sv"}
}

// Manifest represents the complete regression configuration: what to compile,
// how to run it, which scenarios to execute and how to classify their output
type Manifest struct {
	Design    DesignConfig     `yaml:"design"`
	Simulator SimulatorConfig  `yaml:"simulator"`
	Scenarios []ScenarioConfig `yaml:"scenarios"`
	Classify  ClassifyConfig   `yaml:"classify"`
}

// DesignConfig describes the compile side of a regression. Sources are in
// dependency order for a single-pass compiler and are never reordered or
// deduplicated.
type DesignConfig struct {
	Name       string   `yaml:"name"`
	Compiler   string   `yaml:"compiler,omitempty"`
	MinVersion string   `yaml:"min_version,omitempty"`
	Flags      []string `yaml:"flags,omitempty"`
	Artifact   string   `yaml:"artifact,omitempty"`
	Sources    []string `yaml:"sources"`
}

// SimulatorConfig describes the scenario-runner tool. The plusarg key is the
// runtime parameter name the external harness reads the scenario from.
type SimulatorConfig struct {
	Binary  string `yaml:"binary,omitempty"`
	PlusArg string `yaml:"plusarg,omitempty"`
}

// ScenarioConfig represents one scenario entry
type ScenarioConfig struct {
	Name    string         `yaml:"name"`
	Timeout *time.Duration `yaml:"timeout,omitempty"`
}

// UnmarshalYAML accepts either a bare scenario name or a name/timeout
// mapping. Timeouts use Go duration syntax, e.g. "90s" or "30m".
func (s *ScenarioConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&s.Name)
	}
	var raw struct {
		Name    string `yaml:"name"`
		Timeout string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Name = raw.Name
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("scenario %q has invalid timeout: %w", raw.Name, err)
		}
		s.Timeout = &d
	}
	return nil
}

// Rule maps a set of literal output markers to the outcome assigned when one
// of them matches
type Rule struct {
	Outcome Outcome  `yaml:"outcome"`
	Markers []string `yaml:"markers"`
}

// ClassifyConfig carries the ordered marker rules used to classify captured
// output. An empty rule list means the defaults apply.
type ClassifyConfig struct {
	Rules []Rule `yaml:"rules,omitempty"`
}

// DefaultRules returns the marker rules the stock testbenches emit. Pass is
// checked before fail so a pass marker wins when both appear in one capture.
// The bare "ERROR" marker also matches incidental tool chatter; it is kept for
// compatibility with the harness contract and can be overridden per manifest.
func DefaultRules() []Rule {
	return []Rule{
		{Outcome: OutcomePass, Markers: []string{"All Transactions PASSED", "Test Successful"}},
		{Outcome: OutcomeFail, Markers: []string{"TEST FAILED", "ERROR"}},
	}
}

// SetDefaults fills unset toolchain fields and the classification rules
func (m *Manifest) SetDefaults() {
	if m.Design.Compiler == "" {
		m.Design.Compiler = DefaultCompiler
	}
	if len(m.Design.Flags) == 0 {
		m.Design.Flags = DefaultCompileFlags()
	}
	if m.Design.Artifact == "" {
		m.Design.Artifact = DefaultArtifact
	}
	if m.Simulator.Binary == "" {
		m.Simulator.Binary = DefaultSimulator
	}
	if m.Simulator.PlusArg == "" {
		m.Simulator.PlusArg = DefaultPlusArg
	}
	if len(m.Classify.Rules) == 0 {
		m.Classify.Rules = DefaultRules()
	}
}

// Check validates the manifest after defaulting
func (m *Manifest) Check() error {
	if m.Design.Name == "" {
		return fmt.Errorf("design name is required")
	}
	if len(m.Design.Sources) == 0 {
		return fmt.Errorf("design %q has no sources", m.Design.Name)
	}
	if len(m.Scenarios) == 0 {
		return fmt.Errorf("design %q has no scenarios", m.Design.Name)
	}
	for i, s := range m.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenario %d has no name", i)
		}
	}
	for i, r := range m.Classify.Rules {
		switch r.Outcome {
		case OutcomePass, OutcomeFail, OutcomeCrash, OutcomeUnknown:
		default:
			return fmt.Errorf("classify rule %d has unknown outcome %q", i, r.Outcome)
		}
		if len(r.Markers) == 0 {
			return fmt.Errorf("classify rule %d has no markers", i)
		}
	}
	return nil
}
