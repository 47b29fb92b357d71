// Package config manages the steering daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete steerd configuration.
type Config struct {
	Admin    AdminConfig    `koanf:"admin"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Steering SteeringConfig `koanf:"steering"`
}

// AdminConfig holds the net/http admin/introspection API configuration.
type AdminConfig struct {
	// Addr is the admin API listen address (e.g., ":8267").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SteeringConfig holds the net_steering subsystem configuration: the
// local AP's identity, arbitration mode, the bridge interface the raw
// L2 transport binds to, and the peer APs to flood to.
type SteeringConfig struct {
	// Interface is the bridge-facing network interface FrameSender binds
	// its AF_PACKET socket to.
	Interface string `koanf:"interface"`

	// BSSID is this AP's own BSSID. If empty, it is read from Interface's
	// hardware address at startup.
	BSSID string `koanf:"bssid"`

	// Channel is this AP's operating channel, carried in CLOSE_CLIENT
	// TLVs for 802.11v BSS Transition Management hints.
	Channel uint8 `koanf:"channel"`

	// Mode is the steering arbitration mode: "off", "suggest", or "force".
	Mode string `koanf:"mode"`

	// Peers lists peer BSSIDs reachable on the shared bridge.
	Peers []string `koanf:"peers"`

	// OverlayPeers lists peer BSSIDs reachable only through a Geneve
	// tunnel, each paired with that peer's tunnel endpoint IP, as
	// "bssid=ip" entries (e.g., "02:11:22:33:44:55=198.51.100.7").
	OverlayPeers []string `koanf:"overlay_peers"`

	// OverlayVNI is the Geneve VNI identifying this steering domain for
	// tunneled peers. Ignored when OverlayPeers is empty.
	OverlayVNI uint32 `koanf:"overlay_vni"`

	// OverlayLocalAddr is the local IP address the Geneve tunnel socket
	// binds to. Required when OverlayPeers is non-empty.
	OverlayLocalAddr string `koanf:"overlay_local_addr"`
}

// ParseBSSID parses BSSID as a hardware address.
func (sc SteeringConfig) ParseBSSID() (net.HardwareAddr, error) {
	if sc.BSSID == "" {
		return nil, nil
	}
	mac, err := net.ParseMAC(sc.BSSID)
	if err != nil {
		return nil, fmt.Errorf("parse steering.bssid %q: %w", sc.BSSID, err)
	}
	return mac, nil
}

// ParsePeers parses Peers as hardware addresses.
func (sc SteeringConfig) ParsePeers() ([]net.HardwareAddr, error) {
	out := make([]net.HardwareAddr, 0, len(sc.Peers))
	for _, p := range sc.Peers {
		mac, err := net.ParseMAC(p)
		if err != nil {
			return nil, fmt.Errorf("parse steering.peers entry %q: %w", p, err)
		}
		out = append(out, mac)
	}
	return out, nil
}

// OverlayPeerEntry is one parsed "bssid=ip" overlay peer entry.
type OverlayPeerEntry struct {
	BSSID net.HardwareAddr
	Addr  string
}

// ParseOverlayPeers parses OverlayPeers "bssid=ip" entries.
func (sc SteeringConfig) ParseOverlayPeers() ([]OverlayPeerEntry, error) {
	out := make([]OverlayPeerEntry, 0, len(sc.OverlayPeers))
	for _, p := range sc.OverlayPeers {
		bssid, addr, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("overlay peer entry %q: %w", p, ErrInvalidOverlayPeer)
		}
		mac, err := net.ParseMAC(bssid)
		if err != nil {
			return nil, fmt.Errorf("overlay peer entry %q: %w", p, err)
		}
		out = append(out, OverlayPeerEntry{BSSID: mac, Addr: addr})
	}
	return out, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8268",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Steering: SteeringConfig{
			Mode:    "suggest",
			Channel: 0,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for steerd configuration.
// Variables are named STEERD_<section>_<key>, e.g., STEERD_ADMIN_ADDR.
const envPrefix = "STEERD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (STEERD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms STEERD_ADMIN_ADDR -> admin.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":    defaults.Admin.Addr,
		"metrics.addr":  defaults.Metrics.Addr,
		"metrics.path":  defaults.Metrics.Path,
		"log.level":     defaults.Log.Level,
		"log.format":    defaults.Log.Format,
		"steering.mode": defaults.Steering.Mode,
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
	// ErrEmptyAdminAddr indicates the admin API listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrEmptyInterface indicates no bridge interface was configured.
	ErrEmptyInterface = errors.New("steering.interface must not be empty")

	// ErrInvalidMode indicates steering.mode is not one of off/suggest/force.
	ErrInvalidMode = errors.New("steering.mode must be off, suggest, or force")

	// ErrInvalidOverlayPeer indicates an overlay_peers entry is not in
	// "bssid=ip" form.
	ErrInvalidOverlayPeer = errors.New("overlay peer entry must be \"bssid=ip\"")

	// ErrOverlayMissingLocalAddr indicates overlay_peers is set without
	// overlay_local_addr.
	ErrOverlayMissingLocalAddr = errors.New("steering.overlay_local_addr required when overlay_peers is set")
)

// ValidModes lists the recognized steering.mode strings.
var ValidModes = map[string]bool{
	"off":     true,
	"suggest": true,
	"force":   true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Steering.Interface == "" {
		return ErrEmptyInterface
	}

	if !ValidModes[cfg.Steering.Mode] {
		return fmt.Errorf("steering.mode %q: %w", cfg.Steering.Mode, ErrInvalidMode)
	}

	if _, err := cfg.Steering.ParseBSSID(); err != nil {
		return err
	}

	if _, err := cfg.Steering.ParsePeers(); err != nil {
		return err
	}

	overlayPeers, err := cfg.Steering.ParseOverlayPeers()
	if err != nil {
		return err
	}
	if len(overlayPeers) > 0 && cfg.Steering.OverlayLocalAddr == "" {
		return ErrOverlayMissingLocalAddr
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
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
	default:
		return slog.LevelInfo
	}
}
