package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/weirlab/weir/internal/metrics"
	"github.com/weirlab/weir/pkg/bridge"
	"github.com/weirlab/weir/pkg/record"
	"github.com/weirlab/weir/pkg/sink"
	"github.com/weirlab/weir/pkg/state"
)

var agentBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func agentBatch(secs ...int) record.Batch {
	var b record.Batch
	for _, s := range secs {
		ts := agentBase.Add(time.Duration(s) * time.Second)
		b = append(b, record.New(ts, 4, 4, []byte{0xca, 0xfe, 0xba, 0xbe}))
	}
	return b
}

type scriptStep struct {
	batch record.Batch
	err   error
}

// scriptedSource replays its steps in order, then reports end of data.
type scriptedSource struct {
	steps []scriptStep
	i     int
}

func (s *scriptedSource) Poll(ctx context.Context) (record.Batch, error) {
	if s.i >= len(s.steps) {
		return nil, io.EOF
	}
	step := s.steps[s.i]
	s.i++
	return step.batch, step.err
}

type memRepo struct {
	mu      sync.Mutex
	st      state.State
	saves   int
	loadErr error
}

func (r *memRepo) Load(ctx context.Context) (state.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st, r.loadErr
}

func (r *memRepo) Save(ctx context.Context, st state.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st = st
	r.saves++
	return nil
}

func (r *memRepo) state() state.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st
}

type captureSink struct {
	mu       sync.Mutex
	failures int
	calls    int
	shipped  record.Batch
	metas    []sink.Metadata
}

func (s *captureSink) Ship(ctx context.Context, batch record.Batch, meta sink.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("service unavailable")
	}
	s.shipped = append(s.shipped, batch...)
	s.metas = append(s.metas, meta)
	return nil
}

func (s *captureSink) snapshot() (int, record.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append(record.Batch(nil), s.shipped...)
}

type captureEmitter struct {
	mu        sync.Mutex
	successes int
	records   int
	failures  int
}

func (e *captureEmitter) OnShipSuccess(recordCount, bytesSent int, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successes++
	e.records += recordCount
}

func (e *captureEmitter) OnShipError(err error, recordCount int, retryable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures++
}

func fastConfig() AgentConfig {
	return AgentConfig{
		PollInterval:   time.Millisecond,
		SendInterval:   0,
		HardInterval:   time.Minute,
		MaxBatchBytes:  1 << 20,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		StreamID:       "stream-1",
		Hostname:       "host-1",
	}
}

func TestAgentRunShipsAllRecords(t *testing.T) {
	a := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}}
	b := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}}

	br, err := bridge.New([]bridge.Source{a, b}, 0)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}

	snk := &captureSink{}
	repo := &memRepo{}
	agent := NewAgent(fastConfig(), br, snk, repo, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, shipped := snk.snapshot()
	if len(shipped) != 8 {
		t.Fatalf("shipped %d records, want 8", len(shipped))
	}
	for i := 1; i < len(shipped); i++ {
		if shipped[i].Timestamp.Before(shipped[i-1].Timestamp) {
			t.Fatalf("shipped records out of order at %d", i)
		}
	}

	st := repo.state()
	if st.RecordsEmitted != 8 {
		t.Fatalf("RecordsEmitted = %d, want 8", st.RecordsEmitted)
	}
	wantHorizon := agentBase.Add(3 * time.Second).UnixNano()
	if st.EmittedHorizon != wantHorizon {
		t.Fatalf("EmittedHorizon = %d, want %d", st.EmittedHorizon, wantHorizon)
	}
}

func TestAgentDrainEmitsShipEvents(t *testing.T) {
	// Sources that drain before the send interval elapses ship everything
	// through the final flush. Events and metrics must fire there too.
	a := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}}
	b := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}}

	br, err := bridge.New([]bridge.Source{a, b}, 0)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}

	cfg := fastConfig()
	cfg.SendInterval = time.Hour
	cfg.HardInterval = 2 * time.Hour

	emitter := &captureEmitter{}
	m := metrics.New()
	snk := &captureSink{}
	agent := NewAgent(cfg, br, snk, &memRepo{}, nil, emitter, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, shipped := snk.snapshot()
	if len(shipped) != 8 {
		t.Fatalf("shipped %d records, want 8", len(shipped))
	}

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.successes != 1 {
		t.Fatalf("OnShipSuccess fired %d times, want 1", emitter.successes)
	}
	if emitter.records != 8 {
		t.Fatalf("OnShipSuccess reported %d records, want 8", emitter.records)
	}
	if got := testutil.ToFloat64(m.EmittedBatches); got != 1 {
		t.Fatalf("EmittedBatches = %v, want 1", got)
	}
}

func TestAgentRetriesFailedShipment(t *testing.T) {
	a := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
		{err: bridge.ErrPending},
	}}
	b := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
		{err: bridge.ErrPending},
	}}

	br, err := bridge.New([]bridge.Source{a, b}, 0)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}

	snk := &captureSink{failures: 1}
	repo := &memRepo{}
	agent := NewAgent(fastConfig(), br, snk, repo, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls, shipped := snk.snapshot()
	if calls < 2 {
		t.Fatalf("sink called %d times, want at least 2", calls)
	}
	if len(shipped) != 8 {
		t.Fatalf("shipped %d records, want 8 exactly once", len(shipped))
	}
}

func TestAgentFailFastOnSourceError(t *testing.T) {
	boom := errors.New("capture device gone")
	a := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0)},
		{err: boom},
	}}
	b := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0)},
		{batch: agentBatch(1)},
	}}

	br, err := bridge.New([]bridge.Source{a, b}, 0)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}

	snk := &captureSink{}
	agent := NewAgent(fastConfig(), br, snk, &memRepo{}, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := agent.Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want %v", err, boom)
	}

	calls, _ := snk.snapshot()
	if calls != 0 {
		t.Fatalf("sink called %d times after source failure, want 0", calls)
	}
}

func TestAgentCancelFlushesPending(t *testing.T) {
	a := &scriptedSource{steps: append([]scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}, pendingForever(100)...)}
	b := &scriptedSource{steps: append([]scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}, pendingForever(100)...)}

	br, err := bridge.New([]bridge.Source{a, b}, 0)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}

	cfg := fastConfig()
	cfg.SendInterval = time.Hour
	cfg.PollInterval = 10 * time.Millisecond

	snk := &captureSink{}
	repo := &memRepo{}
	agent := NewAgent(cfg, br, snk, repo, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	if err := agent.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	_, shipped := snk.snapshot()
	if len(shipped) != 8 {
		t.Fatalf("shipped %d records on shutdown, want 8", len(shipped))
	}
	if repo.state().RecordsEmitted != 8 {
		t.Fatalf("RecordsEmitted = %d, want 8", repo.state().RecordsEmitted)
	}
}

func TestAgentWakeCutsPendingSleep(t *testing.T) {
	a := &scriptedSource{steps: []scriptStep{
		{err: bridge.ErrPending},
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}}
	b := &scriptedSource{steps: []scriptStep{
		{err: bridge.ErrPending},
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}}

	br, err := bridge.New([]bridge.Source{a, b}, 0)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}

	cfg := fastConfig()
	cfg.PollInterval = time.Hour

	snk := &captureSink{}
	agent := NewAgent(cfg, br, snk, &memRepo{}, nil, nil, nil)

	wake := make(chan struct{}, 1)
	wake <- struct{}{}
	agent.SetWake(wake)

	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not wake from pending sleep")
	}

	_, shipped := snk.snapshot()
	if len(shipped) != 8 {
		t.Fatalf("shipped %d records, want 8", len(shipped))
	}
}

func TestAgentSavesSourcePositions(t *testing.T) {
	a := &scriptedSource{steps: []scriptStep{
		{batch: agentBatch(0, 1)},
		{batch: agentBatch(2, 3)},
	}}

	br, err := bridge.New([]bridge.Source{a}, 0)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}

	repo := &memRepo{}
	agent := NewAgent(fastConfig(), br, &captureSink{}, repo, nil, nil, nil)
	agent.SetPositionFunc(func() map[string]state.SourcePosition {
		return map[string]state.SourcePosition{
			"/var/spool/weir/a": {IdxPath: "000001.idx", IdxOffset: 128, CurDat: "000001.dat"},
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	pos, ok := repo.state().Sources["/var/spool/weir/a"]
	if !ok {
		t.Fatal("source position not persisted")
	}
	if pos.IdxOffset != 128 || pos.IdxPath != "000001.idx" {
		t.Fatalf("unexpected position %+v", pos)
	}
}

func pendingForever(n int) []scriptStep {
	steps := make([]scriptStep, n)
	for i := range steps {
		steps[i] = scriptStep{err: bridge.ErrPending}
	}
	return steps
}
