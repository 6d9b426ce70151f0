package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/weirlab/weir/pkg/bridge"
)

// DefaultServiceURL is the default endpoint for shipping merged records.
const DefaultServiceURL = "https://ingest.weirlab.io"

// Config holds CLI configuration for weir.
type Config struct {
	// SpoolDirs are the capture spool directories to merge. Each directory
	// is one source.
	SpoolDirs []string

	// StreamID names the merged stream toward the ingest service.
	StreamID string

	ServiceURL string
	AuthKey    string

	// OutDir, when set, writes the merged stream to a local spool instead
	// of shipping it over HTTP.
	OutDir string

	MaxBufferSpan time.Duration
	PollInterval  time.Duration
	SendInterval  time.Duration
	HardInterval  time.Duration
	HTTPTimeout   time.Duration

	MaxBatchBytes   int
	MaxSegmentBytes int64
	StateDir        string
	MetricsAddr     string
	LogFile         string

	Follow bool
	Verify bool
	Once   bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ServiceURL:      DefaultServiceURL,
		MaxBufferSpan:   bridge.DefaultMaxBufferSpan,
		PollInterval:    500 * time.Millisecond,
		SendInterval:    5 * time.Second,
		HardInterval:    10 * time.Second,
		HTTPTimeout:     15 * time.Second,
		MaxBatchBytes:   4 << 20,  // 4MB
		MaxSegmentBytes: 64 << 20, // 64MB
		StateDir:        "",       // Derived from the first spool dir during Validate
		AuthKey:         os.Getenv("WEIR_AUTH_KEY"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if len(c.SpoolDirs) == 0 {
		return fmt.Errorf("at least one spool dir is required")
	}
	for _, dir := range c.SpoolDirs {
		if dir == "" {
			return fmt.Errorf("spool dir must not be empty")
		}
	}

	if c.StreamID == "" {
		if h, err := os.Hostname(); err == nil {
			c.StreamID = h
		} else {
			c.StreamID = "default"
		}
	}

	if c.StateDir == "" {
		c.StateDir = c.SpoolDirs[0]
	}

	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}

	// Ensure no trailing slash
	c.ServiceURL = strings.TrimSuffix(c.ServiceURL, "/")

	if c.MaxBufferSpan < 0 {
		return fmt.Errorf("max buffer span must not be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.SendInterval <= 0 {
		return fmt.Errorf("send interval must be positive")
	}
	if c.HardInterval < c.SendInterval {
		return fmt.Errorf("hard interval must not be below the send interval")
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStringSlice sets a slice value if not empty and flag not changed.
func (s *configSetter) setStringSlice(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination if valid.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
