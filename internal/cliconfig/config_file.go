package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	SpoolDirs       []string `toml:"spool_dirs"`
	StreamID        string   `toml:"stream_id"`
	ServiceURL      string   `toml:"service_url"`
	AuthKey         string   `toml:"auth_key"`
	OutDir          string   `toml:"out_dir"`
	MaxBufferSpan   string   `toml:"max_buffer_span"`
	PollInterval    string   `toml:"poll_interval"`
	SendInterval    string   `toml:"send_interval"`
	HardInterval    string   `toml:"hard_interval"`
	HTTPTimeout     string   `toml:"http_timeout"`
	MaxBatchBytes   int      `toml:"max_batch_bytes"`
	MaxSegmentBytes int64    `toml:"max_segment_bytes"`
	StateDir        string   `toml:"state_dir"`
	MetricsAddr     string   `toml:"metrics_addr"`
	LogFile         string   `toml:"log_file"`
	Follow          *bool    `toml:"follow"`
	Verify          *bool    `toml:"verify"`
	Once            *bool    `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.weir/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".weir", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setStringSlice("spool", fc.SpoolDirs, &cfg.SpoolDirs)
	s.setString("stream-id", fc.StreamID, &cfg.StreamID)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("out-dir", fc.OutDir, &cfg.OutDir)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)

	if err := s.setDuration("max-buffer-span", fc.MaxBufferSpan, &cfg.MaxBufferSpan); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("send-interval", fc.SendInterval, &cfg.SendInterval); err != nil {
		return err
	}
	if err := s.setDuration("hard-interval", fc.HardInterval, &cfg.HardInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("max-batch-bytes", fc.MaxBatchBytes, &cfg.MaxBatchBytes)
	s.setInt64("max-segment-bytes", fc.MaxSegmentBytes, &cfg.MaxSegmentBytes)

	s.setBool("follow", fc.Follow, &cfg.Follow)
	s.setBool("verify", fc.Verify, &cfg.Verify)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
