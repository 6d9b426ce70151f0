package app

import (
	"time"

	"github.com/weirlab/weir/pkg/record"
)

// Batcher accumulates merged records until a shipment is due, either by
// size or by time since the last shipment.
type Batcher struct {
	pending       record.Batch
	pendingBytes  int
	maxBatchBytes int
	sendInterval  time.Duration
	hardInterval  time.Duration
	lastSend      time.Time
}

// NewBatcher creates a batcher with the given thresholds.
func NewBatcher(maxBatchBytes int, sendInterval, hardInterval time.Duration) *Batcher {
	return &Batcher{
		maxBatchBytes: maxBatchBytes,
		sendInterval:  sendInterval,
		hardInterval:  hardInterval,
		lastSend:      time.Now(),
	}
}

// Add appends merged records to the pending shipment. Returns true if the
// size threshold has been reached.
func (b *Batcher) Add(batch record.Batch) bool {
	b.pending = append(b.pending, batch...)
	b.pendingBytes += batch.Bytes()
	return b.maxBatchBytes > 0 && b.pendingBytes >= b.maxBatchBytes
}

// ShouldSend returns true if the pending shipment is due on time grounds.
func (b *Batcher) ShouldSend() bool {
	if len(b.pending) == 0 {
		return false
	}
	elapsed := time.Since(b.lastSend)
	return elapsed >= b.sendInterval || elapsed >= b.hardInterval
}

// Batch returns the pending shipment.
func (b *Batcher) Batch() record.Batch {
	return b.pending
}

// Bytes returns the pending payload size.
func (b *Batcher) Bytes() int {
	return b.pendingBytes
}

// HasPending returns true if records are waiting to be shipped.
func (b *Batcher) HasPending() bool {
	return len(b.pending) > 0
}

// Reset clears the pending shipment and restarts the send clock.
func (b *Batcher) Reset() {
	b.pending = nil
	b.pendingBytes = 0
	b.lastSend = time.Now()
}
