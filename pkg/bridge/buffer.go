package bridge

import (
	"time"

	"github.com/weirlab/weir/pkg/record"
)

// sourceState owns one source's not-yet-released batches and its
// completion flag. It is exclusively owned by the Bridge; nothing here
// locks.
type sourceState struct {
	src      Source
	buffered []record.Batch
	complete bool
}

func newSourceState(src Source) *sourceState {
	return &sourceState{src: src}
}

// accept appends a non-empty batch. Must not be called after markComplete;
// the driver stops polling completed sources.
func (s *sourceState) accept(batch record.Batch) {
	s.buffered = append(s.buffered, batch)
}

// markComplete records that the source has reached end-of-data. Idempotent.
func (s *sourceState) markComplete() {
	s.complete = true
}

// exhausted reports whether the source will never contribute another
// record: complete and fully drained.
func (s *sourceState) exhausted() bool {
	return s.complete && len(s.buffered) == 0
}

// watermark returns the timestamp of the newest buffered record. A source
// with nothing buffered contributes no watermark.
func (s *sourceState) watermark() (time.Time, bool) {
	if len(s.buffered) == 0 {
		return time.Time{}, false
	}
	last := s.buffered[len(s.buffered)-1]
	return last.Last()
}

// span returns the time window covered by the buffered data, from the
// oldest buffered record to the newest. This is how long the head of the
// buffer has been waiting, in stream time.
func (s *sourceState) span() time.Duration {
	if len(s.buffered) == 0 {
		return 0
	}
	first, _ := s.buffered[0].First()
	last, _ := s.buffered[len(s.buffered)-1].Last()
	return last.Sub(first)
}

// releaseUpTo removes and returns every buffered record with timestamp at
// or before horizon, preserving relative order. Whatever remains is
// compacted into a single buffered batch.
func (s *sourceState) releaseUpTo(horizon time.Time) []record.Record {
	if len(s.buffered) == 0 {
		return nil
	}

	var released []record.Record
	var kept record.Batch
	for _, batch := range s.buffered {
		for _, r := range batch {
			if r.Timestamp.After(horizon) {
				kept = append(kept, r)
			} else {
				released = append(released, r)
			}
		}
	}

	s.buffered = s.buffered[:0]
	if len(kept) > 0 {
		s.buffered = append(s.buffered, kept)
	}
	return released
}

// bufferedRecords returns the number of records currently held.
func (s *sourceState) bufferedRecords() int {
	var n int
	for _, b := range s.buffered {
		n += len(b)
	}
	return n
}
