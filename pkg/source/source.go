// Package source provides in-memory bridge sources: a non-blocking
// adapter over Go channels for embedding, and a fixed-script source for
// replay and tests.
package source

import (
	"context"
	"io"

	"github.com/weirlab/weir/pkg/bridge"
	"github.com/weirlab/weir/pkg/record"
)

// Chan adapts a channel of batches to the bridge's poll contract. The
// producer closes the batch channel to signal end-of-data, or sends a
// single error on the error channel to fail the source.
type Chan struct {
	batches <-chan record.Batch
	errs    <-chan error
	err     error
	done    bool
}

// NewChan creates a channel-backed source. errs may be nil if the
// producer cannot fail.
func NewChan(batches <-chan record.Batch, errs <-chan error) *Chan {
	return &Chan{batches: batches, errs: errs}
}

// Poll performs a non-blocking receive. An empty channel is reported as
// not-ready, never waited on.
func (c *Chan) Poll(ctx context.Context) (record.Batch, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.done {
		return nil, io.EOF
	}

	if c.errs != nil {
		select {
		case err, ok := <-c.errs:
			if ok && err != nil {
				c.err = err
				return nil, err
			}
		default:
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch, ok := <-c.batches:
		if !ok {
			c.done = true
			return nil, io.EOF
		}
		return batch, nil
	default:
		return nil, bridge.ErrPending
	}
}

// Slice replays a fixed sequence of batches, one per poll, then reports
// end-of-data.
type Slice struct {
	batches []record.Batch
}

// NewSlice creates a source that yields the given batches in order.
func NewSlice(batches ...record.Batch) *Slice {
	return &Slice{batches: batches}
}

// Poll returns the next scripted batch, or io.EOF once exhausted.
func (s *Slice) Poll(ctx context.Context) (record.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.batches) == 0 {
		return nil, io.EOF
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

var (
	_ bridge.Source = (*Chan)(nil)
	_ bridge.Source = (*Slice)(nil)
)
