package spool

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FrameMeta is one line of a spool index file. Field names match the
// on-disk JSON format.
type FrameMeta struct {
	// File is the data segment filename (e.g. "000001.dat").
	File string `json:"file"`

	// Frame is the sequence number within the segment.
	Frame uint64 `json:"frame"`

	// Off is the byte offset of the compressed frame in the data file.
	Off uint64 `json:"off"`

	// Len is the compressed length in bytes.
	Len uint64 `json:"len"`

	// Recs is the number of records in the frame.
	Recs uint32 `json:"recs"`

	// FirstTS and LastTS bound the frame's timestamps, in unix nanoseconds.
	FirstTS int64 `json:"first_ts"`
	LastTS  int64 `json:"last_ts"`

	// CRC32 is the IEEE checksum of the uncompressed frame contents.
	CRC32 uint32 `json:"crc32"`
}

// FirstTime returns the timestamp of the frame's first record.
func (m FrameMeta) FirstTime() time.Time {
	return time.Unix(0, m.FirstTS).UTC()
}

// LastTime returns the timestamp of the frame's last record.
func (m FrameMeta) LastTime() time.Time {
	return time.Unix(0, m.LastTS).UTC()
}

// ReadIndex parses every frame entry of an index file.
func ReadIndex(path string) ([]FrameMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var metas []FrameMeta
	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scan.Scan() {
		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}
		var meta FrameMeta
		if err := json.Unmarshal(line, &meta); err != nil {
			return nil, fmt.Errorf("spool: bad index line in %s: %w", path, err)
		}
		metas = append(metas, meta)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return metas, nil
}
