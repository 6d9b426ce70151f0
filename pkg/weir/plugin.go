package weir

import (
	"context"

	"github.com/weirlab/weir/pkg/log"
)

// Plugin extends a Weir instance with optional background functionality.
// Plugins are initialized in registration order when Start() is called and
// shut down in reverse order during Stop().
type Plugin interface {
	// Name returns the plugin identifier, used in logs.
	Name() string

	// Initialize starts the plugin. The context is canceled when the
	// instance stops.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}

// PluginConfig carries the instance configuration plugins need.
type PluginConfig struct {
	// SpoolDirs are the merged spool directories.
	SpoolDirs []string

	// StateDir holds the persisted progress file.
	StateDir string

	ServiceURL string
	StreamID   string
	AuthKey    string

	// Logger is the instance logger.
	Logger log.Logger

	// Wake, when written to, cuts the merge loop's idle sleep short.
	// Plugins that detect new spool data should send on it (non-blocking;
	// the channel is buffered and a full buffer means a wake is already
	// scheduled).
	Wake chan<- struct{}
}
