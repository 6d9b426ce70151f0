package record

import (
	"sort"
	"time"
)

// Record is a single timestamped capture record.
// Ordering between records is defined solely by Timestamp; the payload is
// opaque to the merge core.
type Record struct {
	// Timestamp is the capture time of the record. Sources must produce
	// records with non-decreasing timestamps.
	Timestamp time.Time

	// Data is the raw payload, possibly truncated at capture time.
	Data []byte

	// OriginalLength is the length the record had on the wire.
	OriginalLength uint32

	// ActualLength is the number of payload bytes actually captured.
	ActualLength uint32
}

// New creates a record with the given timestamp and payload.
func New(ts time.Time, originalLength, actualLength uint32, data []byte) Record {
	return Record{
		Timestamp:      ts,
		Data:           data,
		OriginalLength: originalLength,
		ActualLength:   actualLength,
	}
}

// Truncated reports whether the payload was cut short at capture time.
func (r Record) Truncated() bool {
	return r.ActualLength < r.OriginalLength
}

// Batch is an ordered sequence of records as produced by one poll of one
// source. Within a batch, and across successive batches from the same
// source, timestamps are non-decreasing. This invariant is assumed, not
// verified.
type Batch []Record

// First returns the timestamp of the first record in the batch.
// The second return value is false if the batch is empty.
func (b Batch) First() (time.Time, bool) {
	if len(b) == 0 {
		return time.Time{}, false
	}
	return b[0].Timestamp, true
}

// Last returns the timestamp of the last record in the batch.
// The second return value is false if the batch is empty.
func (b Batch) Last() (time.Time, bool) {
	if len(b) == 0 {
		return time.Time{}, false
	}
	return b[len(b)-1].Timestamp, true
}

// Span returns the duration covered by the batch, from its first record to
// its last. An empty batch spans zero.
func (b Batch) Span() time.Duration {
	first, ok := b.First()
	if !ok {
		return 0
	}
	last, _ := b.Last()
	return last.Sub(first)
}

// Bytes returns the total payload size of the batch.
func (b Batch) Bytes() int {
	var n int
	for _, r := range b {
		n += len(r.Data)
	}
	return n
}

// Sort orders the batch by timestamp ascending. The sort is stable, so
// records with equal timestamps keep their relative order.
func (b Batch) Sort() {
	sort.SliceStable(b, func(i, j int) bool {
		return b[i].Timestamp.Before(b[j].Timestamp)
	})
}
