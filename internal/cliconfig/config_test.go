package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.SpoolDirs = []string{"/var/spool/weir/eth0"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceURL != DefaultServiceURL {
		t.Errorf("ServiceURL = %q, want %q", cfg.ServiceURL, DefaultServiceURL)
	}
	if cfg.MaxBufferSpan != 100*time.Millisecond {
		t.Errorf("MaxBufferSpan = %v, want 100ms", cfg.MaxBufferSpan)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.PollInterval)
	}
	if cfg.MaxBatchBytes != 4<<20 {
		t.Errorf("MaxBatchBytes = %d, want %d", cfg.MaxBatchBytes, 4<<20)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no spool dirs", func(c *Config) { c.SpoolDirs = nil }, true},
		{"empty spool dir", func(c *Config) { c.SpoolDirs = []string{""} }, true},
		{"negative span", func(c *Config) { c.MaxBufferSpan = -time.Second }, true},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, true},
		{"zero send", func(c *Config) { c.SendInterval = 0 }, true},
		{"hard below send", func(c *Config) { c.HardInterval = time.Second; c.SendInterval = 2 * time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDerivesStateDir(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.StateDir != cfg.SpoolDirs[0] {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, cfg.SpoolDirs[0])
	}
}

func TestValidateTrimsServiceURLSlash(t *testing.T) {
	cfg := validConfig()
	cfg.ServiceURL = "https://ingest.example.com/"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ServiceURL != "https://ingest.example.com" {
		t.Errorf("ServiceURL = %q, trailing slash not trimmed", cfg.ServiceURL)
	}
}

func TestValidateDerivesStreamID(t *testing.T) {
	cfg := validConfig()
	cfg.StreamID = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.StreamID == "" {
		t.Error("StreamID not derived")
	}

	host, err := os.Hostname()
	if err == nil && cfg.StreamID != host {
		t.Errorf("StreamID = %q, want hostname %q", cfg.StreamID, host)
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
spool_dirs = ["/spool/a", "/spool/b"]
stream_id = "edge-7"
service_url = "https://ingest.example.com"
max_buffer_span = "250ms"
send_interval = "2s"
max_batch_bytes = 1048576
follow = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig: %v", err)
	}

	if len(fc.SpoolDirs) != 2 || fc.SpoolDirs[1] != "/spool/b" {
		t.Errorf("SpoolDirs = %v", fc.SpoolDirs)
	}
	if fc.StreamID != "edge-7" {
		t.Errorf("StreamID = %q, want edge-7", fc.StreamID)
	}
	if fc.MaxBufferSpan != "250ms" {
		t.Errorf("MaxBufferSpan = %q, want 250ms", fc.MaxBufferSpan)
	}
	if fc.Follow == nil || !*fc.Follow {
		t.Error("Follow not parsed")
	}
}

func TestApplyFileConfig(t *testing.T) {
	cfg := DefaultConfig()
	follow := true
	fc := FileConfig{
		SpoolDirs:     []string{"/spool/file"},
		StreamID:      "from-file",
		SendInterval:  "7s",
		MaxBatchBytes: 999,
		Follow:        &follow,
	}

	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.StreamID != "from-file" {
		t.Errorf("StreamID = %q, want from-file", cfg.StreamID)
	}
	if cfg.SendInterval != 7*time.Second {
		t.Errorf("SendInterval = %v, want 7s", cfg.SendInterval)
	}
	if cfg.MaxBatchBytes != 999 {
		t.Errorf("MaxBatchBytes = %d, want 999", cfg.MaxBatchBytes)
	}
	if !cfg.Follow {
		t.Error("Follow not applied")
	}
}

func TestApplyFileConfigRespectsChangedFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StreamID = "from-flag"
	cfg.SpoolDirs = []string{"/spool/flag"}

	fc := FileConfig{
		SpoolDirs: []string{"/spool/file"},
		StreamID:  "from-file",
	}
	changed := map[string]bool{"stream-id": true, "spool": true}

	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.StreamID != "from-flag" {
		t.Errorf("StreamID = %q, flag value overridden by file", cfg.StreamID)
	}
	if cfg.SpoolDirs[0] != "/spool/flag" {
		t.Errorf("SpoolDirs = %v, flag value overridden by file", cfg.SpoolDirs)
	}
}

func TestApplyFileConfigBadDuration(t *testing.T) {
	cfg := DefaultConfig()
	fc := FileConfig{SendInterval: "not-a-duration"}

	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err == nil {
		t.Fatal("bad duration accepted")
	}
}
