package sink

import (
	"context"

	"github.com/weirlab/weir/pkg/record"
	"github.com/weirlab/weir/pkg/spool"
)

// SpoolSink writes merged batches to a spool directory. The output spool
// is a valid bridge source, so merged streams can be merged again.
type SpoolSink struct {
	writer *spool.Writer
}

// NewSpoolSink creates a sink writing to dir.
func NewSpoolSink(dir string, maxSegmentBytes int64) (*SpoolSink, error) {
	w, err := spool.NewWriter(dir, maxSegmentBytes)
	if err != nil {
		return nil, err
	}
	return &SpoolSink{writer: w}, nil
}

// Ship appends the batch as one spool frame and syncs it.
func (s *SpoolSink) Ship(ctx context.Context, batch record.Batch, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writer.WriteBatch(batch); err != nil {
		return err
	}
	return s.writer.Sync()
}

// Close closes the underlying spool writer.
func (s *SpoolSink) Close() error {
	return s.writer.Close()
}

var _ Sink = (*SpoolSink)(nil)
