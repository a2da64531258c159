package types

import (
	"fmt"
	"time"
)

// Outcome represents the possible classifications of a scenario execution
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeCrash   Outcome = "crash"
	OutcomeUnknown Outcome = "unknown"
)

// ScenarioResult captures the outcome of a single scenario run
type ScenarioResult struct {
	Scenario ScenarioConfig
	Outcome  Outcome
	Error    error         // Spawn, timeout or archive detail; nil for clean classifications
	Duration time.Duration // Track scenario execution time
	ExitCode int           // Exit status of the simulation process
	LogPath  string        // Archived artifact location
	TimedOut bool          // Track if this scenario hit its deadline
}

// RunStats tracks aggregate counts for one regression run
type RunStats struct {
	Total   int
	Passed  int
	Failed  int
	Crashed int
	Unknown int
}

// Record counts one outcome into the stats
func (s *RunStats) Record(o Outcome) {
	s.Total++
	switch o {
	case OutcomePass:
		s.Passed++
	case OutcomeFail:
		s.Failed++
	case OutcomeCrash:
		s.Crashed++
	default:
		s.Unknown++
	}
}

// AllPassed returns true iff every recorded outcome was a pass
func (s RunStats) AllPassed() bool {
	return s.Total == s.Passed
}

func (s RunStats) String() string {
	return fmt.Sprintf("total: %d, passed: %d, failed: %d, crashed: %d, unknown: %d",
		s.Total, s.Passed, s.Failed, s.Crashed, s.Unknown)
}
