package spool

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	"github.com/weirlab/weir/pkg/record"
)

const (
	indexSuffix = ".idx"
	dataSuffix  = ".dat"

	// DefaultMaxSegmentBytes is the data size at which segments rotate.
	DefaultMaxSegmentBytes = 64 << 20
)

// Writer appends batches to a spool directory as compressed frames,
// rotating segments once they grow past the configured size. It is not
// safe for concurrent use.
type Writer struct {
	dir             string
	maxSegmentBytes int64

	seq      uint64
	frameNum uint64
	datFile  *os.File
	idxFile  *os.File
	datOff   int64
}

// NewWriter creates a Writer for the given directory, creating it if
// needed. maxSegmentBytes <= 0 selects DefaultMaxSegmentBytes.
func NewWriter(dir string, maxSegmentBytes int64) (*Writer, error) {
	if maxSegmentBytes <= 0 {
		maxSegmentBytes = DefaultMaxSegmentBytes
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Writer{dir: dir, maxSegmentBytes: maxSegmentBytes}, nil
}

// WriteBatch appends one batch as a single frame. Batches must arrive in
// timestamp order for the resulting spool to be a valid bridge source.
func (w *Writer) WriteBatch(batch record.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	if w.datFile == nil || w.datOff >= w.maxSegmentBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	encoded := EncodeBatch(batch)
	sum := crc32.ChecksumIEEE(encoded)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(encoded); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	compressed := buf.Bytes()

	if _, err := w.datFile.Write(compressed); err != nil {
		return fmt.Errorf("spool: write frame: %w", err)
	}

	first, _ := batch.First()
	last, _ := batch.Last()
	meta := FrameMeta{
		File:    filepath.Base(w.datFile.Name()),
		Frame:   w.frameNum,
		Off:     uint64(w.datOff),
		Len:     uint64(len(compressed)),
		Recs:    uint32(len(batch)),
		FirstTS: first.UnixNano(),
		LastTS:  last.UnixNano(),
		CRC32:   sum,
	}

	line, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := w.idxFile.Write(line); err != nil {
		return fmt.Errorf("spool: write index line: %w", err)
	}

	w.datOff += int64(len(compressed))
	w.frameNum++
	return nil
}

// Sync flushes the current segment pair to stable storage.
func (w *Writer) Sync() error {
	if w.datFile != nil {
		if err := w.datFile.Sync(); err != nil {
			return err
		}
	}
	if w.idxFile != nil {
		return w.idxFile.Sync()
	}
	return nil
}

// Close flushes and closes the current segment pair.
func (w *Writer) Close() error {
	var first error
	if w.datFile != nil {
		if err := w.datFile.Close(); err != nil {
			first = err
		}
		w.datFile = nil
	}
	if w.idxFile != nil {
		if err := w.idxFile.Close(); err != nil && first == nil {
			first = err
		}
		w.idxFile = nil
	}
	return first
}

// rotate closes the current segment pair and starts the next one. Segment
// numbers continue from whatever is already in the directory.
func (w *Writer) rotate() error {
	if err := w.Close(); err != nil {
		return err
	}
	if w.seq == 0 {
		w.seq = nextSegmentSeq(w.dir)
	} else {
		w.seq++
	}

	name := fmt.Sprintf("%06d", w.seq)
	df, err := os.OpenFile(filepath.Join(w.dir, name+dataSuffix),
		os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	xf, err := os.OpenFile(filepath.Join(w.dir, name+indexSuffix),
		os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		df.Close()
		return err
	}

	w.datFile = df
	w.idxFile = xf
	w.datOff = 0
	w.frameNum = 0
	return nil
}

// nextSegmentSeq returns one past the highest existing segment number.
func nextSegmentSeq(dir string) uint64 {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return 1
	}
	var high uint64
	for _, e := range ents {
		n := e.Name()
		if len(n) != 6+len(indexSuffix) || !strings.HasSuffix(n, indexSuffix) {
			continue
		}
		var seq uint64
		if _, err := fmt.Sscanf(n, "%06d", &seq); err == nil && seq > high {
			high = seq
		}
	}
	return high + 1
}
