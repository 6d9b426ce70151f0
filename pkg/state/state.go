// Package state persists merge progress for crash recovery: the emitted
// horizon and each spool source's read position, saved atomically after
// every successful shipment.
package state

import "time"

// SourcePosition is one spool source's read position.
type SourcePosition struct {
	// IdxPath is the index file being read.
	IdxPath string `json:"idx_path"`

	// IdxOffset is the byte position within the index file.
	IdxOffset int64 `json:"idx_offset"`

	// CurDat is the data segment filename being read.
	CurDat string `json:"cur_dat"`
}

// State is the persistent progress of one merge run.
type State struct {
	// EmittedHorizon is the timestamp of the newest record shipped so
	// far, in unix nanoseconds. Everything at or before it has left the
	// merger.
	EmittedHorizon int64 `json:"emitted_horizon"`

	// RecordsEmitted and BatchesEmitted count successful shipments.
	RecordsEmitted uint64 `json:"records_emitted"`
	BatchesEmitted uint64 `json:"batches_emitted"`

	// Sources maps source names (spool directories) to read positions.
	Sources map[string]SourcePosition `json:"sources,omitempty"`

	// LastShipAt is the wall-clock time of the last successful shipment.
	LastShipAt time.Time `json:"last_ship_at"`
}

// IsEmpty returns true if the state has never been saved.
func (s State) IsEmpty() bool {
	return s.EmittedHorizon == 0 && s.BatchesEmitted == 0
}

// Horizon returns the emitted horizon as a time.
func (s State) Horizon() time.Time {
	return time.Unix(0, s.EmittedHorizon).UTC()
}

// UpdateAfterShip advances the state after a successful shipment.
func (s *State) UpdateAfterShip(lastEmitted time.Time, records int) {
	if ns := lastEmitted.UnixNano(); ns > s.EmittedHorizon {
		s.EmittedHorizon = ns
	}
	s.RecordsEmitted += uint64(records)
	s.BatchesEmitted++
	s.LastShipAt = time.Now().UTC()
}

// SetSourcePosition records one source's read position.
func (s *State) SetSourcePosition(name string, pos SourcePosition) {
	if s.Sources == nil {
		s.Sources = make(map[string]SourcePosition)
	}
	s.Sources[name] = pos
}
