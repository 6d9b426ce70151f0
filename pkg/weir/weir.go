package weir

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/weirlab/weir/internal/app"
	"github.com/weirlab/weir/internal/metrics"
	"github.com/weirlab/weir/pkg/bridge"
	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/sink"
	"github.com/weirlab/weir/pkg/spool"
	"github.com/weirlab/weir/pkg/state"
)

// Weir is an embeddable merge agent: it reads timestamped records from a
// set of capture spools, merges them into one time-ordered stream, and
// ships the result. Use New() to create an instance, then Start().
type Weir struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	agent     *app.Agent
	bridge    *bridge.Bridge
	sources   map[string]*spool.Source
	sink      sink.Sink
	stateRepo state.Repository
	logger    log.Logger
	metrics   *metrics.Metrics

	plugins []Plugin
	wake    chan struct{}

	mu         sync.RWMutex
	metricsSrv *http.Server
}

// New creates a new Weir instance with the given configuration.
// The instance is created in StateStopped; call Start() to begin merging.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Weir, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	o := defaultOptions(httpClient)
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	var emitter eventEmitterWrapper
	if o.eventHandler != nil {
		emitter = eventEmitterWrapper{handler: o.eventHandler}
	}

	lifecycle := app.NewLifecycle(logger, &emitter)

	stateRepo := state.NewFileRepository(cfg.StateDir)

	// Prior state positions the sources after a restart.
	prior, err := stateRepo.Load(context.Background())
	if err != nil {
		logger.Warn("failed to load prior state, starting fresh", log.Err(err))
		prior = state.State{}
	}

	sources := make(map[string]*spool.Source, len(cfg.SpoolDirs))
	bridgeSources := make([]bridge.Source, 0, len(cfg.SpoolDirs))
	for _, dir := range cfg.SpoolDirs {
		pos := prior.Sources[dir]
		src := spool.NewSource(spool.SourceConfig{
			Dir:             dir,
			Follow:          cfg.Follow,
			Verify:          cfg.Verify,
			ResumeIdxPath:   pos.IdxPath,
			ResumeIdxOffset: pos.IdxOffset,
			ResumeDat:       pos.CurDat,
		}, logger)
		sources[dir] = src
		bridgeSources = append(bridgeSources, src)
	}

	b, err := bridge.New(bridgeSources, cfg.MaxBufferSpan)
	if err != nil {
		return nil, err
	}

	var snk sink.Sink
	if cfg.OutDir != "" {
		spoolSink, err := sink.NewSpoolSink(cfg.OutDir, cfg.MaxSegmentBytes)
		if err != nil {
			return nil, fmt.Errorf("create output spool: %w", err)
		}
		snk = spoolSink
	} else {
		snk = sink.NewHTTPSink(o.httpClient, logger)
	}

	var m *metrics.Metrics
	if o.metricsAddr != "" {
		m = metrics.New()
	}

	agentCfg := app.AgentConfig{
		PollInterval:  cfg.PollInterval,
		SendInterval:  cfg.SendInterval,
		HardInterval:  cfg.HardInterval,
		MaxBatchBytes: cfg.MaxBatchBytes,
		StreamID:      cfg.StreamID,
		Hostname:      hostname(),
		AuthKey:       cfg.AuthKey,
		ServiceURL:    cfg.ServiceURL,
	}

	agent := app.NewAgent(agentCfg, b, snk, stateRepo, logger, &emitter, m)

	wake := make(chan struct{}, 1)
	agent.SetWake(wake)
	agent.SetPositionFunc(func() map[string]state.SourcePosition {
		positions := make(map[string]state.SourcePosition, len(sources))
		for dir, src := range sources {
			idxPath, idxOffset, curDat := src.Position()
			if idxPath == "" {
				continue
			}
			positions[dir] = state.SourcePosition{
				IdxPath:   idxPath,
				IdxOffset: idxOffset,
				CurDat:    curDat,
			}
		}
		return positions
	})

	return &Weir{
		config:    cfg,
		opts:      o,
		lifecycle: lifecycle,
		agent:     agent,
		bridge:    b,
		sources:   sources,
		sink:      snk,
		stateRepo: stateRepo,
		logger:    logger,
		metrics:   m,
		plugins:   o.plugins,
		wake:      wake,
	}, nil
}

// Start begins merging in the background.
// Returns immediately after starting the merge goroutine.
// Returns an error if already running or if startup fails.
// The provided context is used for the lifetime of the merge operation.
func (w *Weir) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.lifecycle.CanStart() {
		return app.ErrAlreadyRunning
	}

	if err := w.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		SpoolDirs:  w.config.SpoolDirs,
		StateDir:   w.config.StateDir,
		ServiceURL: w.config.ServiceURL,
		StreamID:   w.config.StreamID,
		AuthKey:    w.config.AuthKey,
		Logger:     w.logger,
		Wake:       w.wake,
	}
	for _, p := range w.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			w.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			_ = w.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		w.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	if w.metrics != nil {
		w.metricsSrv = w.metrics.Serve(w.opts.metricsAddr)
		w.logger.Info("metrics server listening", log.String("addr", w.opts.metricsAddr))
	}

	w.lifecycle.AddWorker()
	go func() {
		defer w.lifecycle.WorkerDone()

		if err := w.lifecycle.TransitionTo(app.StateRunning, "agent starting"); err != nil {
			w.logger.Error("failed to transition to running", log.Err(err))
			return
		}

		err := w.agent.Run(runCtx)

		switch {
		case err == nil:
			// Every source drained; the run is complete.
			_ = w.lifecycle.TransitionTo(app.StateStopping, "sources exhausted")
			_ = w.lifecycle.TransitionTo(app.StateStopped, "sources exhausted")
		case errors.Is(err, context.Canceled):
			// Stop() drives the state machine.
		default:
			w.logger.Error("agent error", log.Err(err))
			_ = w.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		}
	}()

	return nil
}

// Stop gracefully shuts down the agent.
// Flushes pending shipments and persists state.
// Waits up to 30 seconds before forcing shutdown.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (w *Weir) Stop() error {
	w.mu.Lock()

	if !w.lifecycle.CanStop() {
		// Already stopped (drained) or crashed; still release resources.
		w.mu.Unlock()
		w.teardown()
		return nil
	}

	if err := w.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		w.mu.Unlock()
		return err
	}

	w.mu.Unlock()

	w.lifecycle.Cancel()

	err := w.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	w.teardown()

	if err != nil {
		_ = w.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = w.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}

	return err
}

// teardown shuts down plugins (in reverse order), the metrics server, and
// the spool resources.
func (w *Weir) teardown() {
	shutdownCtx := context.Background()
	for i := len(w.plugins) - 1; i >= 0; i-- {
		p := w.plugins[i]
		if err := p.Shutdown(shutdownCtx); err != nil {
			w.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			w.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = w.metricsSrv.Shutdown(ctx)
		cancel()
		w.metricsSrv = nil
	}

	for dir, src := range w.sources {
		if err := src.Close(); err != nil {
			w.logger.Warn("failed to close source",
				log.String("dir", dir),
				log.Err(err))
		}
	}

	if c, ok := w.sink.(*sink.SpoolSink); ok {
		if err := c.Close(); err != nil {
			w.logger.Warn("failed to close output spool", log.Err(err))
		}
	}
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (w *Weir) Status() State {
	return convertState(w.lifecycle.State())
}

// Stats returns a snapshot of merge activity.
func (w *Weir) Stats() bridge.Stats {
	return w.bridge.Stats()
}

// hostname returns the current hostname.
func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnShipSuccess(recordCount, bytesSent int, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnShipSuccess(ShipSuccessEvent{
		RecordCount: recordCount,
		BytesSent:   bytesSent,
		Duration:    duration,
	})
}

func (e *eventEmitterWrapper) OnShipError(err error, recordCount int, retryable bool) {
	if e.handler == nil {
		return
	}
	e.handler.OnShipError(ShipErrorEvent{
		Error:       err,
		RecordCount: recordCount,
		Retryable:   retryable,
	})
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
