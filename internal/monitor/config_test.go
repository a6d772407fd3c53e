package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_FullProbeSet(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
probes:
  - {kind: cpu, interval: 15s, warn: 70, critical: 90}
  - {kind: memory}
  - {kind: disk, path: /var/lib/drover}
  - {kind: http, tag: payments, url: "https://pay.example/healthz", warn: 200, critical: 1000}
  - {kind: store, interval: 1m}
`))
	require.NoError(t, err)
	require.Len(t, cfg.Probes, 5)

	assert.Equal(t, 15*time.Second, cfg.Probes[0].Interval)
	assert.Equal(t, 70.0, cfg.Probes[0].Warn)
	assert.Equal(t, time.Duration(0), cfg.Probes[1].Interval)
	assert.Equal(t, "/var/lib/drover", cfg.Probes[2].Path)
	assert.Equal(t, "payments", cfg.Probes[3].Tag)
	assert.Equal(t, time.Minute, cfg.Probes[4].Interval)
}

func TestParseConfig_ProbeRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no probes",
			yaml: `probes: []`,
			want: "no probes declared",
		},
		{
			name: "unknown kind",
			yaml: `
probes:
  - {kind: gpu}
`,
			want: `unknown kind "gpu"`,
		},
		{
			name: "disk without path",
			yaml: `
probes:
  - {kind: disk}
`,
			want: "disk needs path",
		},
		{
			name: "http without url",
			yaml: `
probes:
  - {kind: http, tag: api}
`,
			want: "http needs tag and url",
		},
		{
			name: "duplicate probe",
			yaml: `
probes:
  - {kind: cpu}
  - {kind: cpu}
`,
			want: `duplicate probe "cpu"`,
		},
		{
			name: "warn above critical",
			yaml: `
probes:
  - {kind: cpu, warn: 95, critical: 80}
`,
			want: "warn above critical",
		},
		{
			name: "bad interval",
			yaml: `
probes:
  - {kind: cpu, interval: soon}
`,
			want: "interval",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfigBuild(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
probes:
  - {kind: cpu, warn: 70, critical: 90}
  - {kind: disk, path: /}
  - {kind: store}
`))
	require.NoError(t, err)

	probes, err := cfg.Build(fakePinger{})
	require.NoError(t, err)
	require.Len(t, probes, 3)

	assert.Equal(t, "cpu", probes[0].Name())
	assert.Equal(t, Thresholds{Warn: 70, Critical: 90}, probes[0].(CPUProbe).Limits)
	assert.Equal(t, "disk:/", probes[1].Name())
	assert.Equal(t, DefaultUtilization, probes[1].(DiskProbe).Limits)
	assert.Equal(t, "store", probes[2].Name())
}

func TestConfigBuild_StoreProbeNeedsDatabase(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
probes:
  - {kind: store}
`))
	require.NoError(t, err)

	_, err = cfg.Build(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store probe needs a database")
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
probes:
  - {kind: memory, interval: 45s}
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Probes, 1)
	assert.Equal(t, 45*time.Second, cfg.Probes[0].Interval)
}

func TestLoadConfig_ProbesMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read monitor config")
}
