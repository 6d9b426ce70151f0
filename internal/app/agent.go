package app

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/weirlab/weir/internal/metrics"
	"github.com/weirlab/weir/pkg/bridge"
	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/record"
	"github.com/weirlab/weir/pkg/sink"
	"github.com/weirlab/weir/pkg/state"
)

// AgentConfig contains configuration for the merge loop.
type AgentConfig struct {
	PollInterval  time.Duration
	SendInterval  time.Duration
	HardInterval  time.Duration
	MaxBatchBytes int

	// BackoffInitial and BackoffMax bound the retry delay after a failed
	// shipment. Zero values select the defaults.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Metadata for shipments
	StreamID   string
	Hostname   string
	AuthKey    string
	ServiceURL string
}

// ShipEventEmitter is called on shipment success or failure.
type ShipEventEmitter interface {
	OnShipSuccess(recordCount, bytesSent int, duration time.Duration)
	OnShipError(err error, recordCount int, retryable bool)
}

// Agent drives the bridge: it polls for merged batches, aggregates them
// into shipments, delivers them with backoff, and persists progress.
type Agent struct {
	config    AgentConfig
	bridge    *bridge.Bridge
	sink      sink.Sink
	stateRepo state.Repository
	logger    log.Logger
	batcher   *Batcher
	emitter   ShipEventEmitter
	metrics   *metrics.Metrics

	// wake, when non-nil, cuts the pending sleep short as soon as a
	// source may have new data.
	wake <-chan struct{}

	// positions, when non-nil, supplies source read positions for state
	// persistence after each successful shipment.
	positions func() map[string]state.SourcePosition
}

// NewAgent creates an agent with the given dependencies. metrics and
// emitter may be nil.
func NewAgent(
	config AgentConfig,
	b *bridge.Bridge,
	snk sink.Sink,
	stateRepo state.Repository,
	logger log.Logger,
	emitter ShipEventEmitter,
	m *metrics.Metrics,
) *Agent {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Agent{
		config:    config,
		bridge:    b,
		sink:      snk,
		stateRepo: stateRepo,
		logger:    logger,
		batcher:   NewBatcher(config.MaxBatchBytes, config.SendInterval, config.HardInterval),
		emitter:   emitter,
		metrics:   m,
	}
}

// SetWake installs a wake channel for the pending sleep.
func (a *Agent) SetWake(ch <-chan struct{}) {
	a.wake = ch
}

// SetPositionFunc installs the source position snapshot function.
func (a *Agent) SetPositionFunc(f func() map[string]state.SourcePosition) {
	a.positions = f
}

// Run executes the merge loop until the sources are exhausted, a source
// fails, or the context is canceled. On normal completion every buffered
// record has been shipped exactly once.
func (a *Agent) Run(ctx context.Context) error {
	st, err := a.stateRepo.Load(ctx)
	if err != nil {
		a.logger.Error("failed to load state", log.Err(err))
		// Continue with empty state.
	}

	initial, max := a.config.BackoffInitial, a.config.BackoffMax
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	backoff := newBackoff(initial, max)

	for {
		select {
		case <-ctx.Done():
			a.finalFlush(&st)
			return ctx.Err()
		default:
		}

		batch, err := a.bridge.Poll(ctx)
		if a.metrics != nil {
			a.metrics.ObserveBridge(a.bridge.Stats())
		}

		switch {
		case errors.Is(err, io.EOF):
			a.logger.Info("all sources exhausted")
			a.finalFlush(&st)
			return nil

		case errors.Is(err, bridge.ErrPending):
			// Nothing new; time-based triggers still apply.
			if a.batcher.ShouldSend() {
				a.tryShip(ctx, &st, backoff)
			}
			select {
			case <-ctx.Done():
				a.finalFlush(&st)
				return ctx.Err()
			case <-a.wake:
			case <-time.After(a.config.PollInterval):
			}
			continue

		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			a.finalFlush(&st)
			return err

		case err != nil:
			// A source failed. Buffered data from the other sources is
			// gone with it; the caller rebuilds the merger if it wants
			// to retry.
			a.logger.Error("source failed", log.Err(err))
			return err
		}

		sizeDue := false
		if len(batch) > 0 {
			sizeDue = a.batcher.Add(batch)
			if a.metrics != nil {
				a.metrics.MergedRecords.Add(float64(len(batch)))
			}
		}
		if sizeDue || a.batcher.ShouldSend() {
			a.tryShip(ctx, &st, backoff)
		}
	}
}

// tryShip attempts to deliver the pending shipment. On failure the
// shipment stays pending and the backoff grows; the next trigger retries.
func (a *Agent) tryShip(ctx context.Context, st *state.State, backoff *backoff) {
	batch := a.batcher.Batch()
	if len(batch) == 0 {
		return
	}

	meta := a.metadata()
	bytes := a.batcher.Bytes()

	start := time.Now()
	err := a.sink.Ship(ctx, batch, meta)
	duration := time.Since(start)

	if err != nil {
		a.logger.Error("ship failed",
			log.Err(err),
			log.Int("records", len(batch)),
			log.Int("bytes", bytes),
		)
		if a.metrics != nil {
			a.metrics.ShipErrors.Inc()
		}
		if a.emitter != nil {
			a.emitter.OnShipError(err, len(batch), true)
		}
		backoff.Sleep(ctx)
		return
	}

	a.logger.Info("shipped batch",
		log.Int("records", len(batch)),
		log.Int("bytes", bytes),
		log.Duration("duration", duration),
	)
	if a.metrics != nil {
		a.metrics.EmittedBatches.Inc()
	}
	if a.emitter != nil {
		a.emitter.OnShipSuccess(len(batch), bytes, duration)
	}

	a.commit(ctx, st, batch)
	a.batcher.Reset()
	backoff.Reset()
}

// finalFlush makes one best-effort attempt to ship whatever is pending,
// using a fresh context so a canceled run can still drain. A shipment
// through this path reports the same events and metrics as tryShip.
func (a *Agent) finalFlush(st *state.State) {
	if !a.batcher.HasPending() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch := a.batcher.Batch()
	bytes := a.batcher.Bytes()

	start := time.Now()
	err := a.sink.Ship(ctx, batch, a.metadata())
	duration := time.Since(start)

	if err != nil {
		a.logger.Error("final flush failed",
			log.Err(err),
			log.Int("records", len(batch)),
		)
		if a.metrics != nil {
			a.metrics.ShipErrors.Inc()
		}
		if a.emitter != nil {
			a.emitter.OnShipError(err, len(batch), false)
		}
		return
	}

	a.logger.Info("final flush complete", log.Int("records", len(batch)))
	if a.metrics != nil {
		a.metrics.EmittedBatches.Inc()
	}
	if a.emitter != nil {
		a.emitter.OnShipSuccess(len(batch), bytes, duration)
	}
	a.commit(ctx, st, batch)
	a.batcher.Reset()
}

// commit records a successful shipment in the persisted state.
func (a *Agent) commit(ctx context.Context, st *state.State, shipped record.Batch) {
	last, ok := shipped.Last()
	if ok {
		st.UpdateAfterShip(last, len(shipped))
	}
	if a.positions != nil {
		for name, pos := range a.positions() {
			st.SetSourcePosition(name, pos)
		}
	}
	if err := a.stateRepo.Save(ctx, *st); err != nil {
		a.logger.Error("failed to save state", log.Err(err))
	}
}

func (a *Agent) metadata() sink.Metadata {
	return sink.Metadata{
		ServiceURL: a.config.ServiceURL,
		AuthKey:    a.config.AuthKey,
		StreamID:   a.config.StreamID,
		Hostname:   a.config.Hostname,
	}
}
