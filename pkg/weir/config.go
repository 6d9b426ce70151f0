package weir

import (
	"fmt"
	"strings"
	"time"

	"github.com/weirlab/weir/pkg/bridge"
)

// DefaultServiceURL is the default endpoint for shipping merged records.
const DefaultServiceURL = "https://ingest.weirlab.io"

// Config holds the configuration for a Weir instance.
// Use SetDefaults() to fill unset fields, then Validate().
type Config struct {
	// SpoolDirs are the capture spool directories to merge. Each directory
	// is one source; at least one is required.
	SpoolDirs []string

	// StreamID names the merged stream toward the ingest service.
	StreamID string

	ServiceURL string
	AuthKey    string

	// OutDir, when set, writes the merged stream to a local spool instead
	// of shipping it over HTTP.
	OutDir string

	// StateDir holds the progress file. Defaults to the first spool dir.
	StateDir string

	// MaxBufferSpan bounds how long a record may wait for slower sources
	// before a flush is forced at the cost of ordering.
	MaxBufferSpan time.Duration

	PollInterval time.Duration
	SendInterval time.Duration
	HardInterval time.Duration
	HTTPTimeout  time.Duration

	MaxBatchBytes   int
	MaxSegmentBytes int64

	// Follow keeps the sources alive at the end of their spools, waiting
	// for new frames. Without it, draining every spool ends the run.
	Follow bool

	// Verify enables per-frame CRC checking while reading.
	Verify bool
}

// SetDefaults fills unset fields with default values.
func (c *Config) SetDefaults() {
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	if c.MaxBufferSpan == 0 {
		c.MaxBufferSpan = bridge.DefaultMaxBufferSpan
	}
	if c.PollInterval == 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.SendInterval == 0 {
		c.SendInterval = 5 * time.Second
	}
	if c.HardInterval == 0 {
		c.HardInterval = 10 * time.Second
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = 4 << 20
	}
	if c.MaxSegmentBytes == 0 {
		c.MaxSegmentBytes = 64 << 20
	}
	if c.StateDir == "" && len(c.SpoolDirs) > 0 {
		c.StateDir = c.SpoolDirs[0]
	}
	c.ServiceURL = strings.TrimSuffix(c.ServiceURL, "/")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.SpoolDirs) == 0 {
		return fmt.Errorf("at least one spool dir is required")
	}
	for _, dir := range c.SpoolDirs {
		if dir == "" {
			return fmt.Errorf("spool dir must not be empty")
		}
	}
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
