package spool

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/record"
)

// ErrNoSegments indicates that the spool directory contains no index files
// yet. Callers tailing a live spool should retry later.
var ErrNoSegments = errors.New("spool: no index files found")

// Reader iterates frames of a spool directory in write order, advancing
// across rotated segments. It is not safe for concurrent use.
type Reader struct {
	dir     string
	verify  bool
	idxFile *os.File
	scan    *bufio.Reader
	datFile *os.File
	idxPath string
	idxOff  int64
	curDat  string
	logger  log.Logger
}

// NewReader creates a Reader for the given spool directory. When verify is
// set, each frame's CRC is checked against its index entry.
func NewReader(dir string, verify bool, logger log.Logger) *Reader {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Reader{dir: dir, verify: verify, logger: logger}
}

// Open positions the reader. An empty idxPath starts at the oldest index
// in the directory; otherwise reading resumes from the given position.
func (r *Reader) Open(idxPath string, idxOffset int64, curDat string) error {
	if idxPath == "" {
		var err error
		idxPath, err = oldestIndex(r.dir)
		if err != nil {
			return err
		}
		idxOffset = 0
	}

	f, scan, err := openIndex(idxPath)
	if err != nil {
		return err
	}
	r.idxFile = f
	r.scan = scan
	r.idxPath = idxPath
	r.idxOff = idxOffset

	if idxOffset > 0 {
		if _, err := r.idxFile.Seek(idxOffset, io.SeekStart); err == nil {
			r.scan.Reset(r.idxFile)
		}
	}

	if curDat != "" {
		datPath := filepath.Join(filepath.Dir(idxPath), curDat)
		if df, err := os.Open(datPath); err == nil {
			r.datFile = df
			r.curDat = curDat
		}
	}
	return nil
}

// Next returns the next frame's metadata and decoded records, along with
// the index line length for position tracking. Returns io.EOF when the
// spool is exhausted for now; callers may poll again after new writes.
func (r *Reader) Next(ctx context.Context) (FrameMeta, record.Batch, int, error) {
	select {
	case <-ctx.Done():
		return FrameMeta{}, nil, 0, ctx.Err()
	default:
	}

	line, err := r.scan.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if next, ok := nextIndexAfter(r.idxPath); ok {
				if err := r.advanceToIndex(next); err != nil {
					return FrameMeta{}, nil, 0, io.EOF
				}
				return r.Next(ctx)
			}
			return FrameMeta{}, nil, 0, io.EOF
		}
		return FrameMeta{}, nil, 0, err
	}

	var meta FrameMeta
	if err := json.Unmarshal(line, &meta); err != nil {
		return FrameMeta{}, nil, len(line), fmt.Errorf("spool: bad index line: %w", err)
	}

	if r.datFile == nil || r.curDat != meta.File {
		if r.datFile != nil {
			r.datFile.Close()
		}
		datPath := filepath.Join(filepath.Dir(r.idxPath), meta.File)
		df, err := os.Open(datPath)
		if err != nil {
			return FrameMeta{}, nil, len(line), err
		}
		r.datFile = df
		r.curDat = meta.File
	}

	compressed, err := preadSection(r.datFile, int64(meta.Off), int64(meta.Len))
	if err != nil {
		return FrameMeta{}, nil, len(line), err
	}

	encoded, err := decompress(compressed)
	if err != nil {
		return FrameMeta{}, nil, len(line), fmt.Errorf("spool: frame %d of %s: %w", meta.Frame, meta.File, err)
	}

	if r.verify {
		if sum := crc32.ChecksumIEEE(encoded); sum != meta.CRC32 {
			return FrameMeta{}, nil, len(line),
				fmt.Errorf("spool: crc mismatch on frame %d of %s: got %08x, want %08x",
					meta.Frame, meta.File, sum, meta.CRC32)
		}
	}

	batch, err := DecodeBatch(encoded)
	if err != nil {
		return FrameMeta{}, nil, len(line), err
	}

	r.idxOff += int64(len(line))
	return meta, batch, len(line), nil
}

// Position returns the current read position for state persistence.
func (r *Reader) Position() (string, int64, string) {
	return r.idxPath, r.idxOff, r.curDat
}

// Close releases the open index and data files.
func (r *Reader) Close() error {
	var first error
	if r.idxFile != nil {
		if err := r.idxFile.Close(); err != nil {
			first = err
		}
		r.idxFile = nil
	}
	if r.datFile != nil {
		if err := r.datFile.Close(); err != nil && first == nil {
			first = err
		}
		r.datFile = nil
	}
	return first
}

func (r *Reader) advanceToIndex(nextPath string) error {
	if r.idxFile != nil {
		r.idxFile.Close()
	}
	if r.datFile != nil {
		r.datFile.Close()
		r.datFile = nil
		r.curDat = ""
	}

	f, scan, err := openIndex(nextPath)
	if err != nil {
		return err
	}
	r.idxFile = f
	r.scan = scan
	r.idxPath = nextPath
	r.idxOff = 0

	r.logger.Debug("advanced to next segment", log.String("index", nextPath))
	return nil
}

func openIndex(path string) (*os.File, *bufio.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, bufio.NewReaderSize(f, 64*1024), nil
}

func preadSection(f *os.File, off, length int64) ([]byte, error) {
	sr := io.NewSectionReader(f, off, length)
	buf := make([]byte, length)
	_, err := io.ReadFull(sr, buf)
	return buf, err
}

func decompress(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// oldestIndex returns the lexically smallest index file in dir. Segment
// numbers are zero-padded, so lexical order is write order.
func oldestIndex(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("spool: read dir %s: %w", dir, err)
	}

	oldest := ""
	for _, e := range ents {
		n := e.Name()
		if !strings.HasSuffix(n, indexSuffix) {
			continue
		}
		if oldest == "" || n < oldest {
			oldest = n
		}
	}
	if oldest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoSegments, dir)
	}
	return filepath.Join(dir, oldest), nil
}

// nextIndexAfter returns the index file that follows the current one, if
// any exists yet.
func nextIndexAfter(current string) (string, bool) {
	dir := filepath.Dir(current)
	cur := filepath.Base(current)

	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	next := ""
	for _, e := range ents {
		n := e.Name()
		if !strings.HasSuffix(n, indexSuffix) || n <= cur {
			continue
		}
		if next == "" || n < next {
			next = n
		}
	}
	if next == "" {
		return "", false
	}
	return filepath.Join(dir, next), true
}
