// Package stages holds the canonical, ordered pipeline stage configuration.
// It is read-only presentation data: order and labels for stage identifiers
// that may or may not have been observed yet.
package stages

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Stage describes one known pipeline stage.
type Stage struct {
	ID         string `yaml:"id" json:"id"`
	Label      string `yaml:"label" json:"label"`
	Sublabel   string `yaml:"sublabel" json:"sublabel,omitempty"`
	CountLabel string `yaml:"count_label" json:"count_label,omitempty"`
	// FunnelStageID is the engine-emitted identifier counts are reported
	// under. Empty means the stage never carries a count.
	FunnelStageID string `yaml:"funnel_stage_id" json:"funnel_stage_id,omitempty"`
}

// Config is the ordered stage list.
type Config struct {
	Stages []Stage `yaml:"stages"`
}

// Default returns the embedded stage configuration.
func Default() Config {
	cfg, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("stages: embedded default is invalid: %v", err))
	}
	return cfg
}

// Load reads a stage configuration file. An empty path returns Default.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return Config{}, fmt.Errorf("stages: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML stage configuration.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("stages: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects empty configs and empty or duplicate stage and funnel ids.
func (c Config) Validate() error {
	if len(c.Stages) == 0 {
		return errors.New("stages: at least one stage is required")
	}
	ids := make(map[string]bool, len(c.Stages))
	funnelIDs := make(map[string]bool, len(c.Stages))
	for i, s := range c.Stages {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("stages: stage %d has an empty id", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("stages: duplicate stage id %q", s.ID)
		}
		ids[s.ID] = true
		if s.FunnelStageID == "" {
			continue
		}
		if funnelIDs[s.FunnelStageID] {
			return fmt.Errorf("stages: duplicate funnel_stage_id %q", s.FunnelStageID)
		}
		funnelIDs[s.FunnelStageID] = true
	}
	return nil
}

// ByFunnelID returns the stage mapped to a funnel identifier.
func (c Config) ByFunnelID(funnelID string) (Stage, bool) {
	for _, s := range c.Stages {
		if s.FunnelStageID != "" && s.FunnelStageID == funnelID {
			return s, true
		}
	}
	return Stage{}, false
}
