package monitor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Probe kinds accepted in config files.
const (
	KindCPU    = "cpu"
	KindMemory = "memory"
	KindDisk   = "disk"
	KindHTTP   = "http"
	KindStore  = "store"
)

// ProbeConfig declares one probe.
type ProbeConfig struct {
	Kind     string        `yaml:"kind"`
	Interval time.Duration `yaml:"-"`
	Warn     float64       `yaml:"warn"`
	Critical float64       `yaml:"critical"`
	Path     string        `yaml:"path"` // disk only
	Tag      string        `yaml:"tag"`  // http only
	URL      string        `yaml:"url"`  // http only
}

// UnmarshalYAML accepts intervals written as Go duration strings
// ("30s", "2m"), the same form the pipeline manifests use.
func (p *ProbeConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain ProbeConfig
	var raw struct {
		plain    `yaml:",inline"`
		Interval string `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*p = ProbeConfig(raw.plain)
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("interval: %w", err)
		}
		p.Interval = d
	}
	return nil
}

// Config is the probe set file.
type Config struct {
	Probes []ProbeConfig `yaml:"probes"`
}

// LoadConfig reads and validates a probe set.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read monitor config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates YAML config bytes.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse monitor config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Probes) == 0 {
		return fmt.Errorf("monitor config: no probes declared")
	}
	seen := make(map[string]bool, len(c.Probes))
	for i := range c.Probes {
		p := &c.Probes[i]
		if p.Interval < 0 {
			return fmt.Errorf("monitor config: probe %d: interval must not be negative", i)
		}
		if p.Critical > 0 && p.Warn > p.Critical {
			return fmt.Errorf("monitor config: probe %d: warn above critical", i)
		}

		var key string
		switch p.Kind {
		case KindCPU, KindMemory, KindStore:
			key = p.Kind
		case KindDisk:
			if p.Path == "" {
				return fmt.Errorf("monitor config: probe %d: disk needs path", i)
			}
			key = "disk:" + p.Path
		case KindHTTP:
			if p.Tag == "" || p.URL == "" {
				return fmt.Errorf("monitor config: probe %d: http needs tag and url", i)
			}
			key = "http:" + p.Tag
		default:
			return fmt.Errorf("monitor config: probe %d: unknown kind %q", i, p.Kind)
		}
		if seen[key] {
			return fmt.Errorf("monitor config: duplicate probe %q", key)
		}
		seen[key] = true
	}
	return nil
}

// Build instantiates the configured probes. db backs the store ping
// probe and may be nil when no store probe is declared.
func (c Config) Build(db Pinger) ([]Probe, error) {
	probes := make([]Probe, 0, len(c.Probes))
	for i, p := range c.Probes {
		limits := Thresholds{Warn: p.Warn, Critical: p.Critical}
		if limits.Warn == 0 && limits.Critical == 0 && p.Kind != KindHTTP && p.Kind != KindStore {
			limits = DefaultUtilization
		}

		switch p.Kind {
		case KindCPU:
			probes = append(probes, CPUProbe{Every: p.Interval, Limits: limits})
		case KindMemory:
			probes = append(probes, MemoryProbe{Every: p.Interval, Limits: limits})
		case KindDisk:
			probes = append(probes, DiskProbe{Path: p.Path, Every: p.Interval, Limits: limits})
		case KindHTTP:
			probes = append(probes, HTTPProbe{Tag: p.Tag, URL: p.URL, Every: p.Interval, Limits: limits})
		case KindStore:
			if db == nil {
				return nil, fmt.Errorf("monitor config: probe %d: store probe needs a database", i)
			}
			probes = append(probes, PingProbe{DB: db, Every: p.Interval})
		}
	}
	return probes, nil
}
