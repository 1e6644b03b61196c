package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klemensn/nqptp/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if !slices.Equal(cfg.Network.Ports, []int{319, 320}) {
		t.Errorf("Network.Ports = %v, want [319 320]", cfg.Network.Ports)
	}

	if cfg.Network.BindHost != "" {
		t.Errorf("Network.BindHost = %q, want empty", cfg.Network.BindHost)
	}

	if cfg.Network.BundleCapacity != 16 {
		t.Errorf("Network.BundleCapacity = %d, want 16", cfg.Network.BundleCapacity)
	}

	if cfg.Identity.Source != "netlink" {
		t.Errorf("Identity.Source = %q, want %q", cfg.Identity.Source, "netlink")
	}

	if cfg.Metrics.Addr != ":9319" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9319")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "json" || cfg.Log.DebugLevel != 1 {
		t.Errorf("Log = %+v, want info/json/1", cfg.Log)
	}

	if cfg.Capture.Enabled || cfg.Capture.ReadBuffer != 2048 {
		t.Errorf("Capture = %+v, want disabled/2048", cfg.Capture)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestPortNumbers(t *testing.T) {
	t.Parallel()

	got := config.DefaultConfig().Network.PortNumbers()
	if !slices.Equal(got, []uint16{319, 320}) {
		t.Errorf("PortNumbers() = %v, want [319 320]", got)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
log:
  level: "debug"
  format: "text"
  debug_level: 3
network:
  ports: [320]
  bind_host: "::1"
  multicast: true
  bundle_capacity: 4
identity:
  interface: "eth1"
  source: "stdlib"
metrics:
  addr: ""
capture:
  enabled: true
  read_buffer: 512
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" || cfg.Log.DebugLevel != 3 {
		t.Errorf("Log = %+v", cfg.Log)
	}

	if !slices.Equal(cfg.Network.Ports, []int{320}) {
		t.Errorf("Network.Ports = %v, want [320]", cfg.Network.Ports)
	}

	if cfg.Network.BindHost != "::1" || !cfg.Network.Multicast || cfg.Network.BundleCapacity != 4 {
		t.Errorf("Network = %+v", cfg.Network)
	}

	if cfg.Identity.Interface != "eth1" || cfg.Identity.Source != "stdlib" {
		t.Errorf("Identity = %+v", cfg.Identity)
	}

	if cfg.Metrics.Addr != "" {
		t.Errorf("Metrics.Addr = %q, want empty (disabled)", cfg.Metrics.Addr)
	}

	if !cfg.Capture.Enabled || cfg.Capture.ReadBuffer != 512 {
		t.Errorf("Capture = %+v", cfg.Capture)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override log.level and identity.interface.
	// Everything else should inherit from defaults.
	yamlContent := `
log:
  level: "warn"
identity:
  interface: "eth0"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.Identity.Interface != "eth0" {
		t.Errorf("Identity.Interface = %q, want %q", cfg.Identity.Interface, "eth0")
	}

	// Default values should be preserved.
	if cfg.Identity.Source != "netlink" {
		t.Errorf("Identity.Source = %q, want default %q", cfg.Identity.Source, "netlink")
	}

	if !slices.Equal(cfg.Network.Ports, []int{319, 320}) {
		t.Errorf("Network.Ports = %v, want default [319 320]", cfg.Network.Ports)
	}

	if cfg.Metrics.Addr != ":9319" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9319")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Network.BundleCapacity != 16 {
		t.Errorf("Network.BundleCapacity = %d, want default 16", cfg.Network.BundleCapacity)
	}
}

// TestLoadEnvOverrides cannot run in parallel: t.Setenv mutates the process.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NQPTP_NETWORK_PORTS", "319, 320,9319")
	t.Setenv("NQPTP_NETWORK_BIND_HOST", "127.0.0.1")
	t.Setenv("NQPTP_LOG_DEBUG_LEVEL", "2")
	t.Setenv("NQPTP_CAPTURE_ENABLED", "true")

	path := writeTemp(t, "log:\n  level: debug\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if !slices.Equal(cfg.Network.Ports, []int{319, 320, 9319}) {
		t.Errorf("Network.Ports = %v, want [319 320 9319]", cfg.Network.Ports)
	}

	if cfg.Network.BindHost != "127.0.0.1" {
		t.Errorf("Network.BindHost = %q, want %q", cfg.Network.BindHost, "127.0.0.1")
	}

	if cfg.Log.DebugLevel != 2 {
		t.Errorf("Log.DebugLevel = %d, want 2", cfg.Log.DebugLevel)
	}

	if !cfg.Capture.Enabled {
		t.Error("Capture.Enabled = false, want true")
	}

	// File value survives when no env override exists.
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestEnvMapper(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		wantKey string
	}{
		{name: "NQPTP_LOG_LEVEL", value: "debug", wantKey: "log.level"},
		{name: "NQPTP_NETWORK_BIND_HOST", value: "::", wantKey: "network.bind_host"},
		{name: "NQPTP_CAPTURE_READ_BUFFER", value: "512", wantKey: "capture.read_buffer"},
		{name: "NQPTP_METRICS", value: "x", wantKey: "metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key, val := config.EnvMapper(tt.name, tt.value)
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if val != tt.value {
				t.Errorf("value = %v, want %q", val, tt.value)
			}
		})
	}

	key, val := config.EnvMapper("NQPTP_NETWORK_PORTS", "319,,320 ")
	if key != "network.ports" {
		t.Errorf("ports key = %q", key)
	}
	ports, ok := val.([]string)
	if !ok || !slices.Equal(ports, []string{"319", "320"}) {
		t.Errorf("ports value = %#v, want [319 320]", val)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "no ports",
			modify: func(cfg *config.Config) {
				cfg.Network.Ports = nil
			},
			wantErr: config.ErrNoPorts,
		},
		{
			name: "port zero",
			modify: func(cfg *config.Config) {
				cfg.Network.Ports = []int{0}
			},
			wantErr: config.ErrInvalidPort,
		},
		{
			name: "port too large",
			modify: func(cfg *config.Config) {
				cfg.Network.Ports = []int{319, 70000}
			},
			wantErr: config.ErrInvalidPort,
		},
		{
			name: "duplicate port",
			modify: func(cfg *config.Config) {
				cfg.Network.Ports = []int{319, 320, 319}
			},
			wantErr: config.ErrDuplicatePort,
		},
		{
			name: "bundle too small",
			modify: func(cfg *config.Config) {
				cfg.Network.BundleCapacity = 3
			},
			wantErr: config.ErrInvalidBundleCapacity,
		},
		{
			name: "unknown identity source",
			modify: func(cfg *config.Config) {
				cfg.Identity.Source = "sysfs"
			},
			wantErr: config.ErrInvalidIdentitySource,
		},
		{
			name: "zero debug level",
			modify: func(cfg *config.Config) {
				cfg.Log.DebugLevel = 0
			},
			wantErr: config.ErrInvalidDebugLevel,
		},
		{
			name: "tiny read buffer with capture",
			modify: func(cfg *config.Config) {
				cfg.Capture.Enabled = true
				cfg.Capture.ReadBuffer = 16
			},
			wantErr: config.ErrInvalidReadBuffer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIgnoresReadBufferWhenCaptureDisabled(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Capture.ReadBuffer = 0

	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "network:\n  ports: [319, 319]\n")

	_, err := config.Load(path)
	if !errors.Is(err, config.ErrDuplicatePort) {
		t.Fatalf("Load() error = %v, want ErrDuplicatePort", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "-8", want: slog.LevelDebug - 4},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "nqptp.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
