// Package spoolwatch provides spool directory monitoring for weir.
// When enabled, it watches the configured spool directories and wakes the
// merge loop as soon as new frames are written, instead of waiting for the
// next poll interval.
package spoolwatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/weir"
)

// Plugin implements spool watching functionality.
// It monitors the spool directories for index file writes and signals the
// merge loop through the wake channel.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	debounceDelay time.Duration

	// Runtime state
	spoolDirs []string
	wake      chan<- struct{}
	logger    log.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	debounce  *time.Timer
}

// Config holds configuration options for the spool watcher plugin.
type Config struct {
	// DebounceDelay is the delay to wait after a file change before waking
	// the merge loop. Writes arriving in bursts coalesce into one wake.
	// Default: 50 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 50 * time.Millisecond,
	}
}

// New creates a new spool watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 50 * time.Millisecond
	}
	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "spoolwatch"
}

// Initialize sets up the plugin and starts the watcher.
func (p *Plugin) Initialize(ctx context.Context, cfg weir.PluginConfig) error {
	p.mu.Lock()
	p.spoolDirs = cfg.SpoolDirs
	p.wake = cfg.Wake
	p.logger = cfg.Logger
	p.mu.Unlock()

	if len(p.spoolDirs) == 0 || p.wake == nil {
		p.logger.Warn("spool watcher disabled: no spool dirs or wake channel configured")
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("spool watcher plugin initialized")

	p.wg.Add(1)
	go p.watchLoop(watchCtx)

	return nil
}

// Shutdown stops the watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// watchLoop watches for index file writes in the spool directories.
func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("spool watcher: failed to create watcher", log.Err(err))
		return
	}
	defer watcher.Close()

	watching := 0
	for _, dir := range p.spoolDirs {
		if err := watcher.Add(dir); err != nil {
			p.logger.Warn("spool watcher: failed to watch directory",
				log.String("dir", dir),
				log.Err(err))
			continue
		}
		watching++
	}
	if watching == 0 {
		p.logger.Error("spool watcher: no directories could be watched")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// A frame only becomes readable once its index line lands.
			if !strings.HasSuffix(event.Name, ".idx") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceWake()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("spool watcher: watcher error", log.Err(err))
		}
	}
}

// debounceWake schedules one wake signal after the debounce delay.
func (p *Plugin) debounceWake() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		select {
		case p.wake <- struct{}{}:
		default:
			// A wake is already queued.
		}
	})
}

// Ensure Plugin implements weir.Plugin.
var _ weir.Plugin = (*Plugin)(nil)
