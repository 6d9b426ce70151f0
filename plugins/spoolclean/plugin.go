// Package spoolclean provides automatic spool cleanup for weir.
// When enabled, it periodically removes spool segments whose records have
// all been shipped, to prevent unbounded disk usage.
package spoolclean

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/spool"
	"github.com/weirlab/weir/pkg/state"
	"github.com/weirlab/weir/pkg/weir"
)

// Plugin implements spool cleanup functionality.
// It periodically compares each segment's newest timestamp against the
// persisted emitted horizon and removes segments that are fully shipped.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	checkInterval  time.Duration
	runImmediately bool

	// Runtime state
	spoolDirs []string
	stateDir  string
	logger    log.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Config holds configuration options for the spool cleanup plugin.
type Config struct {
	// CheckInterval is how often to scan the spool directories.
	// Default: 10 minutes
	CheckInterval time.Duration

	// RunImmediately if true, runs a cleanup check on startup.
	// Default: true
	RunImmediately bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  10 * time.Minute,
		RunImmediately: true,
	}
}

// New creates a new spool cleanup plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Minute
	}
	return &Plugin{
		checkInterval:  cfg.CheckInterval,
		runImmediately: cfg.RunImmediately,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "spoolclean"
}

// Initialize sets up the plugin and starts the cleanup loop.
func (p *Plugin) Initialize(ctx context.Context, cfg weir.PluginConfig) error {
	p.mu.Lock()
	p.spoolDirs = cfg.SpoolDirs
	p.stateDir = cfg.StateDir
	p.logger = cfg.Logger
	p.mu.Unlock()

	if len(p.spoolDirs) == 0 || p.stateDir == "" {
		p.logger.Warn("spool cleanup disabled: no spool dirs or state dir configured")
		return nil
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("spool cleanup plugin initialized")

	p.wg.Add(1)
	go p.cleanupLoop(cleanupCtx)

	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// cleanupLoop runs periodic cleanup checks.
func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.runImmediately {
		p.cleanupOnce(ctx)
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanupOnce(ctx)
		}
	}
}

// cleanupOnce performs a single cleanup pass over every spool directory.
func (p *Plugin) cleanupOnce(ctx context.Context) {
	p.mu.RLock()
	spoolDirs := p.spoolDirs
	stateDir := p.stateDir
	p.mu.RUnlock()

	st, err := state.NewFileRepository(stateDir).Load(ctx)
	if err != nil {
		p.logger.Error("spool cleanup: state load failed", log.Err(err))
		return
	}
	if st.IsEmpty() {
		// Nothing shipped yet, nothing is safe to remove.
		return
	}

	removed := 0
	for _, dir := range spoolDirs {
		if ctx.Err() != nil {
			return
		}
		pos := st.Sources[dir]
		removed += p.cleanDir(dir, st.EmittedHorizon, pos.IdxPath)
	}

	if removed > 0 {
		p.logger.Info("spool cleanup completed", log.Int("segments_removed", removed))
	}
}

// cleanDir removes fully shipped segments from one spool directory.
// The segment currently being read (protectedIdx) and everything after it
// stay, as does the newest segment, which may still be appended to.
func (p *Plugin) cleanDir(dir string, horizon int64, protectedIdx string) int {
	indexes, err := sortedIndexes(dir)
	if err != nil {
		p.logger.Error("spool cleanup: list segments failed",
			log.String("dir", dir),
			log.Err(err))
		return 0
	}
	if len(indexes) <= 1 {
		return 0
	}

	protected := filepath.Base(protectedIdx)

	removed := 0
	for _, name := range indexes[:len(indexes)-1] {
		if protected != "" && name >= protected {
			break
		}

		idxPath := filepath.Join(dir, name)
		metas, err := spool.ReadIndex(idxPath)
		if err != nil {
			p.logger.Error("spool cleanup: read index failed",
				log.String("index", idxPath),
				log.Err(err))
			continue
		}
		if len(metas) == 0 || metas[len(metas)-1].LastTS > horizon {
			// Segments are written in time order; once one is unshipped,
			// so is everything after it.
			break
		}

		if err := removeSegment(dir, name, metas); err != nil {
			p.logger.Error("spool cleanup: remove failed",
				log.String("index", idxPath),
				log.Err(err))
			continue
		}
		removed++
	}
	return removed
}

// sortedIndexes lists the index files of dir in write order.
func sortedIndexes(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if strings.HasSuffix(e.Name(), ".idx") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// removeSegment deletes the data files referenced by the index, then the
// index itself.
func removeSegment(dir, idxName string, metas []spool.FrameMeta) error {
	seen := map[string]bool{}
	for _, m := range metas {
		if m.File == "" || seen[m.File] {
			continue
		}
		seen[m.File] = true
		if err := os.Remove(filepath.Join(dir, m.File)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return os.Remove(filepath.Join(dir, idxName))
}

// Ensure Plugin implements weir.Plugin.
var _ weir.Plugin = (*Plugin)(nil)
