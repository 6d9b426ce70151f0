package source

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/weirlab/weir/pkg/bridge"
	"github.com/weirlab/weir/pkg/record"
)

func oneRecord(sec int) record.Batch {
	return record.Batch{{Timestamp: time.Unix(int64(sec), 0).UTC()}}
}

func TestChanPollNonBlocking(t *testing.T) {
	ch := make(chan record.Batch, 1)
	src := NewChan(ch, nil)
	ctx := context.Background()

	if _, err := src.Poll(ctx); !errors.Is(err, bridge.ErrPending) {
		t.Fatalf("expected ErrPending on empty channel, got %v", err)
	}

	ch <- oneRecord(1)
	batch, err := src.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch))
	}

	close(ch)
	if _, err := src.Poll(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on closed channel, got %v", err)
	}
	// End-of-data is sticky.
	if _, err := src.Poll(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF to persist, got %v", err)
	}
}

func TestChanErrorIsSticky(t *testing.T) {
	ch := make(chan record.Batch, 1)
	errs := make(chan error, 1)
	src := NewChan(ch, errs)
	ctx := context.Background()

	srcErr := errors.New("producer failed")
	errs <- srcErr
	ch <- oneRecord(1)

	for i := 0; i < 3; i++ {
		if _, err := src.Poll(ctx); !errors.Is(err, srcErr) {
			t.Fatalf("poll %d: expected producer error, got %v", i, err)
		}
	}
}

func TestSliceReplaysThenEnds(t *testing.T) {
	src := NewSlice(oneRecord(1), oneRecord(2))
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		batch, err := src.Poll(ctx)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if want := time.Unix(int64(i), 0).UTC(); !batch[0].Timestamp.Equal(want) {
			t.Fatalf("poll %d: timestamp %v, want %v", i, batch[0].Timestamp, want)
		}
	}
	if _, err := src.Poll(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestChanFeedsBridge(t *testing.T) {
	ch := make(chan record.Batch, 4)
	src := NewChan(ch, nil)

	b, err := bridge.New([]bridge.Source{src}, time.Minute)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}

	ch <- oneRecord(1)
	ch <- oneRecord(2)
	close(ch)

	ctx := context.Background()
	var out record.Batch
	for {
		batch, err := b.Poll(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, bridge.ErrPending) {
			continue
		}
		if err != nil {
			t.Fatalf("bridge poll: %v", err)
		}
		out = append(out, batch...)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 merged records, got %d", len(out))
	}
}
