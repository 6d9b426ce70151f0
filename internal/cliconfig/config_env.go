package cliconfig

import (
	"os"
	"strings"
)

// ApplyEnvConfig applies configuration from environment variables (WEIR_*).
// It respects flags that have been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setStringSlice("spool", splitDirs(os.Getenv("WEIR_SPOOL_DIRS")), &cfg.SpoolDirs)
	s.setString("stream-id", os.Getenv("WEIR_STREAM_ID"), &cfg.StreamID)
	s.setString("service-url", os.Getenv("WEIR_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("auth-key", os.Getenv("WEIR_AUTH_KEY"), &cfg.AuthKey)
	s.setString("out-dir", os.Getenv("WEIR_OUT_DIR"), &cfg.OutDir)
	s.setString("state-dir", os.Getenv("WEIR_STATE_DIR"), &cfg.StateDir)
	s.setString("metrics-addr", os.Getenv("WEIR_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-file", os.Getenv("WEIR_LOG_FILE"), &cfg.LogFile)

	if err := s.setDuration("max-buffer-span", os.Getenv("WEIR_MAX_BUFFER_SPAN"), &cfg.MaxBufferSpan); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("WEIR_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("send-interval", os.Getenv("WEIR_SEND_INTERVAL"), &cfg.SendInterval); err != nil {
		return err
	}
	if err := s.setDuration("hard-interval", os.Getenv("WEIR_HARD_INTERVAL"), &cfg.HardInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("WEIR_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("max-batch-bytes", os.Getenv("WEIR_MAX_BATCH_BYTES"), &cfg.MaxBatchBytes); err != nil {
		return err
	}
	if err := s.setInt64FromString("max-segment-bytes", os.Getenv("WEIR_MAX_SEGMENT_BYTES"), &cfg.MaxSegmentBytes); err != nil {
		return err
	}

	s.setBoolFromString("follow", os.Getenv("WEIR_FOLLOW"), &cfg.Follow)
	s.setBoolFromString("verify", os.Getenv("WEIR_VERIFY"), &cfg.Verify)
	s.setBoolFromString("once", os.Getenv("WEIR_ONCE"), &cfg.Once)

	return nil
}

// splitDirs parses a comma-separated directory list, dropping empty entries.
func splitDirs(v string) []string {
	if v == "" {
		return nil
	}
	var dirs []string
	for _, d := range strings.Split(v, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}
