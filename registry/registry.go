package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/verif-infra/sim-acceptor/types"
)

// Registry manages the regression manifest: the ordered compile units, the
// ordered scenario list and the classification rules
type Registry struct {
	config   Config
	manifest *types.Manifest
	mu       sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            log.Logger
	ManifestFile   string
	DefaultTimeout time.Duration
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.ManifestFile == "" {
		return nil, fmt.Errorf("manifest file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadManifest(cfg.ManifestFile); err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "design", r.manifest.Design.Name,
		"len(sources)", len(r.manifest.Design.Sources), "len(scenarios)", len(r.manifest.Scenarios))

	return r, nil
}

// loadManifest loads and validates the regression manifest
func (r *Registry) loadManifest(cfgPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	manifest, err := loadManifestFile(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	manifest.SetDefaults()
	if err := manifest.Check(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	r.warnDuplicateScenarios(manifest)
	r.manifest = manifest

	return nil
}

// warnDuplicateScenarios flags repeated scenario names. Duplicates still run
// in order; the later run overwrites the earlier artifact of the same name.
func (r *Registry) warnDuplicateScenarios(manifest *types.Manifest) {
	seen := make(map[string]bool, len(manifest.Scenarios))
	for _, s := range manifest.Scenarios {
		if seen[s.Name] {
			r.config.Log.Warn("Duplicate scenario in manifest", "scenario", s.Name)
		}
		seen[s.Name] = true
	}
}

// Manifest returns the loaded manifest
func (r *Registry) Manifest() *types.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifest
}

// Scenarios returns the ordered scenario list with the registry default
// timeout applied to entries that do not set their own
func (r *Registry) Scenarios() []types.ScenarioConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scenarios := make([]types.ScenarioConfig, len(r.manifest.Scenarios))
	copy(scenarios, r.manifest.Scenarios)
	if r.config.DefaultTimeout > 0 {
		for i := range scenarios {
			if scenarios[i].Timeout == nil {
				t := r.config.DefaultTimeout
				scenarios[i].Timeout = &t
			}
		}
	}
	return scenarios
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// loadManifestFile loads a regression manifest from a file
func loadManifestFile(path string) (*types.Manifest, error) {
	log.Debug("Reading manifest file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var m types.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &m, nil
}
