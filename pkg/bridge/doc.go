// Package bridge merges independently produced, internally time-ordered
// record streams into a single globally time-ordered stream with bounded
// emission latency.
//
// # Model
//
// Each input is a [Source]: a non-blocking pollable producer of record
// batches. The [Bridge] polls every source once per tick, buffers whatever
// arrived, and releases records using the low-watermark rule: once every
// source has produced data up to time T, no source can retroactively
// produce a record at or before T, so everything at or before T is safe to
// emit in final time order.
//
// A source that stalls would normally hold back everything behind it. The
// bridge therefore bounds how long buffered data may wait: when any
// source's buffered window exceeds the configured maximum span, a flush is
// forced even though the horizon is not settled. This trades strict
// ordering for a latency cap, and can surface late records from the
// straggler out of order relative to already-emitted data.
//
// # Composition
//
// A Bridge is itself a Source, so bridges can be layered for hierarchical
// merging.
package bridge
