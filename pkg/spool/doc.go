// Package spool reads and writes weir's on-disk record spool.
//
// A spool directory holds numbered segment pairs: a data file (.dat) of
// gzip-compressed frames, and an index file (.idx) of JSON lines, one per
// frame, giving the frame's location, record count, timestamp range, and a
// CRC of its uncompressed contents. Frames are appended in timestamp order,
// so a spool read front to back is an internally time-ordered stream, which
// is the shape the bridge requires of its sources.
//
// [Reader] iterates frames across rotating segments. [Source] adapts a
// Reader to the bridge's poll contract, either finishing at the end of the
// spool or tailing it for new frames. [Writer] produces the same layout,
// which means merged output written through a Writer can be merged again.
package spool
