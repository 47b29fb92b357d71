package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cococomm/steerd/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Admin.Addr != ":8268" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":8268")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Steering.Mode != "suggest" {
		t.Errorf("Steering.Mode = %q, want %q", cfg.Steering.Mode, "suggest")
	}

	// DefaultConfig leaves Interface empty, so it fails validation on its
	// own -- a real deployment must always name a bridge interface.
	cfg.Steering.Interface = "br0"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate() after setting interface: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  addr: ":60000"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
steering:
  interface: "br0"
  bssid: "02:00:00:00:00:01"
  channel: 6
  mode: "force"
  peers:
    - "02:00:00:00:00:02"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":60000" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":60000")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Steering.Interface != "br0" {
		t.Errorf("Steering.Interface = %q, want %q", cfg.Steering.Interface, "br0")
	}

	if cfg.Steering.Mode != "force" {
		t.Errorf("Steering.Mode = %q, want %q", cfg.Steering.Mode, "force")
	}

	if cfg.Steering.Channel != 6 {
		t.Errorf("Steering.Channel = %d, want %d", cfg.Steering.Channel, 6)
	}

	if len(cfg.Steering.Peers) != 1 || cfg.Steering.Peers[0] != "02:00:00:00:00:02" {
		t.Errorf("Steering.Peers = %v, want [02:00:00:00:00:02]", cfg.Steering.Peers)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override admin.addr and log.level, plus the
	// interface Validate requires. Everything else inherits defaults.
	yamlContent := `
admin:
  addr: ":55555"
log:
  level: "warn"
steering:
  interface: "br0"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Admin.Addr != ":55555" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Steering.Mode != "suggest" {
		t.Errorf("Steering.Mode = %q, want default %q", cfg.Steering.Mode, "suggest")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	baseline := func() *config.Config {
		cfg := config.DefaultConfig()
		cfg.Steering.Interface = "br0"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty admin addr",
			modify: func(cfg *config.Config) {
				cfg.Admin.Addr = ""
			},
			wantErr: config.ErrEmptyAdminAddr,
		},
		{
			name: "empty interface",
			modify: func(cfg *config.Config) {
				cfg.Steering.Interface = ""
			},
			wantErr: config.ErrEmptyInterface,
		},
		{
			name: "invalid mode",
			modify: func(cfg *config.Config) {
				cfg.Steering.Mode = "aggressive"
			},
			wantErr: config.ErrInvalidMode,
		},
		{
			name: "malformed bssid",
			modify: func(cfg *config.Config) {
				cfg.Steering.BSSID = "not-a-mac"
			},
		},
		{
			name: "malformed peer entry",
			modify: func(cfg *config.Config) {
				cfg.Steering.Peers = []string{"not-a-mac"}
			},
		},
		{
			name: "malformed overlay peer entry",
			modify: func(cfg *config.Config) {
				cfg.Steering.OverlayPeers = []string{"missing-equals-sign"}
			},
			wantErr: config.ErrInvalidOverlayPeer,
		},
		{
			name: "overlay peers without local addr",
			modify: func(cfg *config.Config) {
				cfg.Steering.OverlayPeers = []string{"02:00:00:00:00:02=198.51.100.7"}
				cfg.Steering.OverlayLocalAddr = ""
			},
			wantErr: config.ErrOverlayMissingLocalAddr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseline()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
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

func TestParseOverlayPeers(t *testing.T) {
	t.Parallel()

	sc := config.SteeringConfig{
		OverlayPeers: []string{
			"02:00:00:00:00:02=198.51.100.7",
			"02:00:00:00:00:03=198.51.100.8",
		},
	}

	entries, err := sc.ParseOverlayPeers()
	if err != nil {
		t.Fatalf("ParseOverlayPeers() error: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("ParseOverlayPeers() returned %d entries, want 2", len(entries))
	}

	if entries[0].BSSID.String() != "02:00:00:00:00:02" || entries[0].Addr != "198.51.100.7" {
		t.Errorf("entries[0] = %+v, want bssid 02:00:00:00:00:02 addr 198.51.100.7", entries[0])
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "steerd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
