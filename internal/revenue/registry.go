package revenue

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/droverhq/drover/internal/store"
)

// PlatformConfig declares one revenue platform.
type PlatformConfig struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	TargetCents int64  `yaml:"target_cents"`
	Enabled     *bool  `yaml:"enabled"` // default true
}

// Registry is the platform registry file.
type Registry struct {
	Platforms []PlatformConfig `yaml:"platforms"`
}

// LoadRegistry reads and validates a platform registry.
func LoadRegistry(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("read platform registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses and validates YAML registry bytes.
func ParseRegistry(data []byte) (Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse platform registry: %w", err)
	}
	if err := reg.validate(); err != nil {
		return Registry{}, err
	}
	return reg, nil
}

func (r Registry) validate() error {
	seen := make(map[string]bool, len(r.Platforms))
	for i, p := range r.Platforms {
		if p.Name == "" {
			return fmt.Errorf("platform registry: platform %d: missing name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("platform registry: duplicate platform %q", p.Name)
		}
		seen[p.Name] = true
		if p.TargetCents <= 0 {
			return fmt.Errorf("platform registry: platform %q: target_cents must be positive", p.Name)
		}
	}
	return nil
}

func (p PlatformConfig) enabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Sync mirrors the registry into the store. Existing rows are updated
// in place so a registry edit takes effect on the next sync.
func (r Registry) Sync(ctx context.Context, st *store.Store) error {
	for _, p := range r.Platforms {
		plat := store.Platform{
			Name:        p.Name,
			Category:    p.Category,
			TargetCents: p.TargetCents,
			Enabled:     p.enabled(),
		}
		if err := st.UpsertPlatform(ctx, plat); err != nil {
			return fmt.Errorf("sync platform %s: %w", p.Name, err)
		}
	}
	return nil
}
