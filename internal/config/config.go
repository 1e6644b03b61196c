// Package config manages nqptp daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables layered over defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete nqptp configuration.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Network  NetworkConfig  `koanf:"network"`
	Identity IdentityConfig `koanf:"identity"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Capture  CaptureConfig  `koanf:"capture"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
	// DebugLevel is the verbosity frames are dumped at when capture is
	// enabled. 1 logs at info, each step above is more verbose.
	DebugLevel int `koanf:"debug_level"`
}

// NetworkConfig describes the PTP sockets to open.
type NetworkConfig struct {
	// Ports are the UDP ports to listen on; 319 (event) and 320 (general).
	Ports []int `koanf:"ports"`
	// BindHost restricts listening to one host or address. Empty means
	// the wildcard address of every family.
	BindHost string `koanf:"bind_host"`
	// Multicast joins the PTP primary multicast group on every socket.
	Multicast bool `koanf:"multicast"`
	// BundleCapacity is the maximum number of sockets held open.
	BundleCapacity int `koanf:"bundle_capacity"`
}

// IdentityConfig selects where the clock identity comes from.
type IdentityConfig struct {
	// Interface pins the identity to one interface by name. Empty picks the
	// first eligible interface.
	Interface string `koanf:"interface"`
	// Source is the interface enumerator: "netlink" or "stdlib".
	Source string `koanf:"source"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9319").
	// Empty disables the endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// CaptureConfig controls reading frames from the opened sockets and
// dumping them to the log.
type CaptureConfig struct {
	Enabled bool `koanf:"enabled"`
	// ReadBuffer is the per-datagram read buffer in bytes.
	ReadBuffer int `koanf:"read_buffer"`
}

// PortNumbers returns the configured ports as uint16. Call after Validate.
func (nc NetworkConfig) PortNumbers() []uint16 {
	out := make([]uint16, 0, len(nc.Ports))
	for _, p := range nc.Ports {
		out = append(out, uint16(p)) //nolint:gosec // G115: range checked by Validate.
	}
	return out
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			DebugLevel: 1,
		},
		Network: NetworkConfig{
			Ports:          []int{319, 320},
			BundleCapacity: 16,
		},
		Identity: IdentityConfig{
			Source: "netlink",
		},
		Metrics: MetricsConfig{
			Addr: ":9319",
			Path: "/metrics",
		},
		Capture: CaptureConfig{
			ReadBuffer: 2048,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for nqptp configuration.
// Variables are named NQPTP_<section>_<key>, e.g., NQPTP_METRICS_ADDR.
const envPrefix = "NQPTP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NQPTP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults. An empty path skips the file layer.
//
// Environment variable mapping:
//
//	NQPTP_LOG_LEVEL          -> log.level
//	NQPTP_LOG_DEBUG_LEVEL    -> log.debug_level
//	NQPTP_NETWORK_PORTS      -> network.ports (comma separated)
//	NQPTP_NETWORK_BIND_HOST  -> network.bind_host
//	NQPTP_IDENTITY_INTERFACE -> identity.interface
//	NQPTP_METRICS_ADDR       -> metrics.addr
//	NQPTP_CAPTURE_ENABLED    -> capture.enabled
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %q: %w", path, err)
	}

	return cfg, nil
}

// envKey transforms NQPTP_NETWORK_BIND_HOST -> network.bind_host. Only the
// first underscore after the prefix separates section from key, so keys
// keep their own underscores.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + key
}

// envMapper maps an environment variable to its koanf key and value. The
// port list is split on commas.
func envMapper(name, value string) (string, any) {
	key := envKey(name)
	if key == "network.ports" {
		var ports []string
		for p := range strings.SplitSeq(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				ports = append(ports, p)
			}
		}
		return key, ports
	}
	return key, value
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"log.level":               defaults.Log.Level,
		"log.format":              defaults.Log.Format,
		"log.debug_level":         defaults.Log.DebugLevel,
		"network.ports":           defaults.Network.Ports,
		"network.bind_host":       defaults.Network.BindHost,
		"network.multicast":       defaults.Network.Multicast,
		"network.bundle_capacity": defaults.Network.BundleCapacity,
		"identity.interface":      defaults.Identity.Interface,
		"identity.source":         defaults.Identity.Source,
		"metrics.addr":            defaults.Metrics.Addr,
		"metrics.path":            defaults.Metrics.Path,
		"capture.enabled":         defaults.Capture.Enabled,
		"capture.read_buffer":     defaults.Capture.ReadBuffer,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrNoPorts indicates no listening port is configured.
	ErrNoPorts = errors.New("network.ports must not be empty")

	// ErrInvalidPort indicates a port outside 1..65535.
	ErrInvalidPort = errors.New("network.ports entries must be in 1..65535")

	// ErrDuplicatePort indicates the same port listed twice.
	ErrDuplicatePort = errors.New("duplicate port in network.ports")

	// ErrInvalidBundleCapacity indicates the bundle cannot hold one socket
	// per family for every port.
	ErrInvalidBundleCapacity = errors.New("network.bundle_capacity too small for configured ports")

	// ErrInvalidIdentitySource indicates an unknown interface enumerator.
	ErrInvalidIdentitySource = errors.New("identity.source must be netlink or stdlib")

	// ErrInvalidDebugLevel indicates a debug level below 1.
	ErrInvalidDebugLevel = errors.New("log.debug_level must be >= 1")

	// ErrInvalidReadBuffer indicates a capture buffer too small for a PTP header.
	ErrInvalidReadBuffer = errors.New("capture.read_buffer must be >= 44")
)

// minReadBuffer is the length of a PTPv2 common header plus a timestamp.
const minReadBuffer = 44

// ValidIdentitySources lists the recognized identity.source strings.
var ValidIdentitySources = map[string]bool{
	"netlink": true,
	"stdlib":  true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if err := validatePorts(cfg.Network.Ports); err != nil {
		return err
	}

	// Every port may open one socket per address family.
	if cfg.Network.BundleCapacity < 2*len(cfg.Network.Ports) {
		return fmt.Errorf("%w: capacity %d, ports %d",
			ErrInvalidBundleCapacity, cfg.Network.BundleCapacity, len(cfg.Network.Ports))
	}

	if !ValidIdentitySources[cfg.Identity.Source] {
		return fmt.Errorf("identity.source %q: %w", cfg.Identity.Source, ErrInvalidIdentitySource)
	}

	if cfg.Log.DebugLevel < 1 {
		return ErrInvalidDebugLevel
	}

	if cfg.Capture.Enabled && cfg.Capture.ReadBuffer < minReadBuffer {
		return ErrInvalidReadBuffer
	}

	return nil
}

func validatePorts(ports []int) error {
	if len(ports) == 0 {
		return ErrNoPorts
	}

	seen := make(map[int]struct{}, len(ports))
	for i, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("network.ports[%d] = %d: %w", i, p, ErrInvalidPort)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("network.ports[%d] = %d: %w", i, p, ErrDuplicatePort)
		}
		seen[p] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive),
// or a signed integer slog level such as "-8" for frame dumps below debug.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}
	return slog.LevelInfo
}
