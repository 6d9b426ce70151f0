package spool

import (
	"context"
	"errors"
	"io"

	"github.com/weirlab/weir/pkg/bridge"
	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/record"
)

// SourceConfig configures a spool-backed bridge source.
type SourceConfig struct {
	// Dir is the spool directory to read.
	Dir string

	// Follow keeps the source alive at the end of the spool, reporting
	// not-ready until new frames are written. Without it, the end of the
	// spool is end-of-data.
	Follow bool

	// Verify enables per-frame CRC checking. A mismatch is a terminal
	// source error.
	Verify bool

	// ResumeIdxPath, ResumeIdxOffset and ResumeDat position the reader
	// from persisted state. Zero values start at the oldest segment.
	ResumeIdxPath   string
	ResumeIdxOffset int64
	ResumeDat       string
}

// Source adapts a spool Reader to the bridge's poll contract.
type Source struct {
	cfg    SourceConfig
	reader *Reader
	opened bool
	logger log.Logger
}

// NewSource creates a spool source. The spool is opened lazily on the
// first poll so that a Follow source may start before its directory has
// any segments.
func NewSource(cfg SourceConfig, logger log.Logger) *Source {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Source{
		cfg:    cfg,
		reader: NewReader(cfg.Dir, cfg.Verify, logger),
		logger: logger,
	}
}

// Poll returns the next frame's records. At the end of the spool it
// reports bridge.ErrPending in Follow mode and io.EOF otherwise.
func (s *Source) Poll(ctx context.Context) (record.Batch, error) {
	if !s.opened {
		err := s.reader.Open(s.cfg.ResumeIdxPath, s.cfg.ResumeIdxOffset, s.cfg.ResumeDat)
		if errors.Is(err, ErrNoSegments) {
			if s.cfg.Follow {
				return nil, bridge.ErrPending
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		s.opened = true
	}

	_, batch, _, err := s.reader.Next(ctx)
	if errors.Is(err, io.EOF) {
		if s.cfg.Follow {
			return nil, bridge.ErrPending
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Position returns the current read position for state persistence.
func (s *Source) Position() (idxPath string, idxOffset int64, curDat string) {
	return s.reader.Position()
}

// Close releases the underlying reader.
func (s *Source) Close() error {
	return s.reader.Close()
}

var _ bridge.Source = (*Source)(nil)
