package runner

import (
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/verif-infra/sim-acceptor/types"
)

// Classifier assigns an outcome to captured scenario output using an ordered
// rule set with first-match priority. It only ever sees output from processes
// that exited zero; a non-zero exit is a crash before classification is
// consulted.
type Classifier struct {
	rules []types.Rule
}

// NewClassifier builds a classifier from ordered rules. Rule order is the
// priority order: the first rule with any matching marker decides. An empty
// rule list falls back to the defaults.
func NewClassifier(rules []types.Rule) *Classifier {
	if len(rules) == 0 {
		rules = types.DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns exactly one outcome for the captured text. ANSI escapes
// are stripped before matching so colored tool output cannot hide a marker.
// Text matching no rule is unknown, never promoted to a pass: an undetected
// outcome usually means a broken harness or a hang, not a success.
func (c *Classifier) Classify(output []byte) types.Outcome {
	text := stripansi.Strip(string(output))
	for _, rule := range c.rules {
		for _, marker := range rule.Markers {
			if strings.Contains(text, marker) {
				return rule.Outcome
			}
		}
	}
	return types.OutcomeUnknown
}

// Rules returns the ordered rule set the classifier was built with
func (c *Classifier) Rules() []types.Rule {
	return c.rules
}
