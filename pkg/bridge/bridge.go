package bridge

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/weirlab/weir/pkg/record"
)

// DefaultMaxBufferSpan is a reasonable latency bound for sources with
// moderate jitter. Smaller values favor low latency over ordering
// fidelity; larger values favor strict ordering.
const DefaultMaxBufferSpan = 100 * time.Millisecond

// ErrNoSources is returned by New when the source set is empty.
var ErrNoSources = errors.New("bridge: at least one source is required")

// ErrNegativeSpan is returned by New when the buffer span bound is negative.
var ErrNegativeSpan = errors.New("bridge: max buffer span must not be negative")

// Stats is a snapshot of bridge activity, taken after the most recent poll.
type Stats struct {
	// Ticks is the number of completed polls.
	Ticks uint64

	// Flushes is the number of polls that ran the release algorithm.
	Flushes uint64

	// ForcedFlushes counts flushes triggered by the latency bound rather
	// than by every source being ready.
	ForcedFlushes uint64

	// PendingTicks counts polls in which every remaining source stalled.
	PendingTicks uint64

	// ActiveSources is the number of sources not yet exhausted.
	ActiveSources int

	// BufferedRecords is the number of records currently held back.
	BufferedRecords int

	// MaxSpread is the widest buffered window observed on the last poll.
	MaxSpread time.Duration
}

// Bridge merges a fixed set of sources into one time-ordered stream.
//
// Bridge is not safe for concurrent use: it is driven by a single caller
// repeatedly invoking Poll. It implements Source itself.
type Bridge struct {
	states        []*sourceState
	maxBufferSpan time.Duration
	stats         Stats

	// err, once set by a failed source, is returned by every subsequent
	// Poll. Buffered data from the other sources is discarded with it.
	err  error
	done bool
}

// New creates a Bridge over the given sources. maxBufferSpan bounds how
// long any record may wait in a buffer before a flush is forced.
func New(sources []Source, maxBufferSpan time.Duration) (*Bridge, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if maxBufferSpan < 0 {
		return nil, ErrNegativeSpan
	}

	states := make([]*sourceState, 0, len(sources))
	for _, src := range sources {
		states = append(states, newSourceState(src))
	}

	return &Bridge{
		states:        states,
		maxBufferSpan: maxBufferSpan,
	}, nil
}

// Poll advances every source once, buffers what arrived, and releases
// whatever is safe (or overdue) to emit.
//
// Returns ErrPending when every remaining source stalled this tick, io.EOF
// once all sources are exhausted and everything has been emitted, and the
// source's error if any source fails. A nil error may accompany an empty
// batch on ticks where the release gate was not met.
//
// If the release gate is met on a tick where every remaining source
// stalled, the released records are discarded with the ErrPending result.
// A source reaching end-of-data while its siblings stall on the same tick
// triggers this.
func (b *Bridge) Poll(ctx context.Context) (record.Batch, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stalled := 0
	for _, st := range b.states {
		if st.complete {
			continue
		}

		batch, err := st.src.Poll(ctx)
		switch {
		case errors.Is(err, ErrPending):
			stalled++
		case errors.Is(err, io.EOF):
			st.markComplete()
		case err != nil:
			b.err = err
			return nil, err
		case len(batch) == 0:
			stalled++
		default:
			st.accept(batch)
		}
	}

	var maxSpread time.Duration
	for _, st := range b.states {
		if spread := st.span(); spread > maxSpread {
			maxSpread = spread
		}
	}
	overdue := maxSpread > b.maxBufferSpan

	// A source's watermark is trusted only once a newer batch has arrived
	// behind it, or once the source can produce nothing newer at all.
	ready := 0
	for _, st := range b.states {
		if len(st.buffered) >= 2 || st.complete {
			ready++
		}
	}

	var out record.Batch
	if ready == len(b.states) || overdue {
		out = b.gather()
		b.stats.Flushes++
		if overdue && ready != len(b.states) {
			b.stats.ForcedFlushes++
		}
	}

	live := b.states[:0]
	for _, st := range b.states {
		if !st.exhausted() {
			live = append(live, st)
		}
	}
	b.states = live

	b.stats.Ticks++
	b.stats.ActiveSources = len(b.states)
	b.stats.MaxSpread = maxSpread
	b.stats.BufferedRecords = 0
	for _, st := range b.states {
		b.stats.BufferedRecords += st.bufferedRecords()
	}

	switch {
	case len(out) == 0 && len(b.states) == 0:
		b.done = true
		return nil, io.EOF
	case stalled >= len(b.states) && len(b.states) > 0:
		b.stats.PendingTicks++
		return nil, ErrPending
	default:
		return out, nil
	}
}

// gather computes the release horizon (the minimum watermark across all
// sources that have one), extracts everything at or before it from every
// source, and returns the records in timestamp order. Ties are broken by
// source construction order via the stable sort.
func (b *Bridge) gather() record.Batch {
	var horizon time.Time
	found := false
	for _, st := range b.states {
		wm, ok := st.watermark()
		if !ok {
			continue
		}
		if !found || wm.Before(horizon) {
			horizon = wm
			found = true
		}
	}
	if !found {
		return nil
	}

	var out record.Batch
	for _, st := range b.states {
		out = append(out, st.releaseUpTo(horizon)...)
	}
	out.Sort()
	return out
}

// Stats returns a snapshot of bridge activity.
func (b *Bridge) Stats() Stats {
	return b.stats
}
