package runner

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/semver"

	"github.com/verif-infra/sim-acceptor/types"
)

// Toolchain holds the resolved binaries a regression run invokes
type Toolchain struct {
	Compiler  string // Resolved compiler path
	Simulator string // Resolved simulator path
	Version   string // Compiler version banner, best effort
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// Preflight resolves the toolchain binaries before the compile gate so a
// missing tool fails the run up front instead of midway through the loop.
// When the manifest sets a minimum compiler version it is enforced here.
func Preflight(ctx context.Context, logger log.Logger, m *types.Manifest) (*Toolchain, error) {
	compiler, err := exec.LookPath(m.Design.Compiler)
	if err != nil {
		return nil, fmt.Errorf("compiler %q not found on PATH: %w", m.Design.Compiler, err)
	}
	simulator, err := exec.LookPath(m.Simulator.Binary)
	if err != nil {
		return nil, fmt.Errorf("simulator %q not found on PATH: %w", m.Simulator.Binary, err)
	}

	tc := &Toolchain{
		Compiler:  compiler,
		Simulator: simulator,
		Version:   toolVersion(ctx, compiler),
	}
	logger.Info("Resolved toolchain", "compiler", tc.Compiler, "version", tc.Version, "simulator", tc.Simulator)

	if m.Design.MinVersion != "" {
		if tc.Version == "" {
			return nil, fmt.Errorf("manifest requires compiler version >= %s but the tool did not report one", m.Design.MinVersion)
		}
		if semver.Compare(canonicalVersion(tc.Version), canonicalVersion(m.Design.MinVersion)) < 0 {
			return nil, fmt.Errorf("compiler version %s is older than required %s", tc.Version, m.Design.MinVersion)
		}
	}

	return tc, nil
}

// toolVersion asks the compiler for its version banner. Icarus prints the
// version on the first line of `-V` output; the exit status is ignored since
// some releases exit non-zero after printing it.
func toolVersion(ctx context.Context, bin string) string {
	out, _ := exec.CommandContext(ctx, bin, "-V").CombinedOutput()
	return versionPattern.FindString(string(out))
}

// canonicalVersion normalizes tool banners like "12.0" into the v-prefixed
// form the semver helpers expect
func canonicalVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	if v == "" {
		return ""
	}
	return semver.Canonical("v" + v)
}
