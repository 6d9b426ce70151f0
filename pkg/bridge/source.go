package bridge

import (
	"context"
	"errors"

	"github.com/weirlab/weir/pkg/record"
)

// ErrPending indicates that a source has no batch ready this tick.
// The caller should arrange to be woken when the source has data and poll
// again; polling in a tight loop defeats the purpose.
var ErrPending = errors.New("bridge: no batch ready")

// Source is a non-blocking producer of time-ordered record batches.
//
// Poll returns the next batch, or ErrPending when nothing is ready yet,
// or io.EOF once the source has permanently finished. Any other error is
// terminal: the source must not be polled again after returning one.
//
// Batches from a single source must carry non-decreasing timestamps, both
// within a batch and across successive batches. The bridge relies on this
// invariant and does not verify it.
type Source interface {
	Poll(ctx context.Context) (record.Batch, error)
}
