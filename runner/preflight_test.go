package runner

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verif-infra/sim-acceptor/types"
)

// stubToolchain drops fake compiler and simulator binaries onto a private
// PATH. The compiler answers -V with the given banner.
func stubToolchain(t *testing.T, versionBanner string) string {
	t.Helper()
	dir := t.TempDir()
	writeScript(t, dir, "iverilog", `echo "`+versionBanner+`"`)
	writeScript(t, dir, "vvp", `exit 0`)
	t.Setenv("PATH", dir)
	return dir
}

func preflightManifest() *types.Manifest {
	return &types.Manifest{
		Design: types.DesignConfig{
			Name:     "risc_soc",
			Compiler: "iverilog",
			Artifact: "soc_sim",
			Sources:  []string{"rtl/timer.v"},
		},
		Simulator: types.SimulatorConfig{Binary: "vvp"},
	}
}

func TestPreflight_ResolvesTools(t *testing.T) {
	dir := stubToolchain(t, "Icarus Verilog version 12.0 (stable)")

	tc, err := Preflight(context.Background(), log.NewLogger(log.DiscardHandler()), preflightManifest())
	require.NoError(t, err)

	assert.Contains(t, tc.Compiler, dir)
	assert.Contains(t, tc.Simulator, dir)
	assert.Equal(t, "12.0", tc.Version)
}

func TestPreflight_MissingCompiler(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := Preflight(context.Background(), log.NewLogger(log.DiscardHandler()), preflightManifest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `compiler "iverilog" not found`)
}

func TestPreflight_MissingSimulator(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "iverilog", `echo "version 12.0"`)
	t.Setenv("PATH", dir)

	_, err := Preflight(context.Background(), log.NewLogger(log.DiscardHandler()), preflightManifest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `simulator "vvp" not found`)
}

func TestPreflight_MinVersion(t *testing.T) {
	tests := []struct {
		name       string
		banner     string
		minVersion string
		wantErr    string
	}{
		{
			name:       "new enough",
			banner:     "Icarus Verilog version 12.0 (stable)",
			minVersion: "11.0",
		},
		{
			name:       "exact match",
			banner:     "Icarus Verilog version 11.0",
			minVersion: "11.0",
		},
		{
			name:       "too old",
			banner:     "Icarus Verilog version 10.3",
			minVersion: "11.0",
			wantErr:    "older than required",
		},
		{
			name:       "patch level compared",
			banner:     "version 11.0.1",
			minVersion: "11.0.2",
			wantErr:    "older than required",
		},
		{
			name:       "no banner at all",
			banner:     "usage: iverilog [flags]",
			minVersion: "11.0",
			wantErr:    "did not report one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubToolchain(t, tt.banner)
			m := preflightManifest()
			m.Design.MinVersion = tt.minVersion

			_, err := Preflight(context.Background(), log.NewLogger(log.DiscardHandler()), m)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPreflight_NoMinVersionSkipsCheck(t *testing.T) {
	// A compiler with no recognizable banner is fine as long as the
	// manifest does not demand a minimum version
	stubToolchain(t, "some tool, no digits here")

	tc, err := Preflight(context.Background(), log.NewLogger(log.DiscardHandler()), preflightManifest())
	require.NoError(t, err)
	assert.Empty(t, tc.Version)
}
