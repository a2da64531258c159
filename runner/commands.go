package runner

import (
	"strings"

	"github.com/verif-infra/sim-acceptor/types"
)

// CompileArgs builds the compiler argument vector for a design. Sources are
// passed through in their configured order: dependency order matters to a
// single-pass compiler, so there is no reordering, no deduplication and no
// existence check. A missing file surfaces later as a compiler failure.
func CompileArgs(design types.DesignConfig) []string {
	args := make([]string, 0, len(design.Flags)+len(design.Sources)+2)
	args = append(args, design.Flags...)
	args = append(args, "-o", design.Artifact)
	args = append(args, design.Sources...)
	return args
}

// ScenarioArgs builds the simulator argument vector for one scenario. The
// scenario name rides on the configured plusarg so the external harness can
// select the matching stimulus at runtime.
func ScenarioArgs(sim types.SimulatorConfig, artifact string, scenario string) []string {
	return []string{artifact, "+" + sim.PlusArg + "=" + scenario}
}

// commandString renders a binary and its args the way a shell would see them
func commandString(bin string, args []string) string {
	return bin + " " + strings.Join(args, " ")
}
