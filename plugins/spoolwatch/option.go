package spoolwatch

import "github.com/weirlab/weir/pkg/weir"

// WithSpoolWatcher returns a weir Option that enables spool directory
// watching. When enabled, new frames wake the merge loop immediately
// instead of waiting out the poll interval.
//
// Usage:
//
//	w, err := weir.New(cfg,
//	    spoolwatch.WithSpoolWatcher(spoolwatch.Config{
//	        DebounceDelay: 50 * time.Millisecond,
//	    }),
//	)
func WithSpoolWatcher(cfg Config) weir.Option {
	plugin := New(cfg)
	return weir.WithPlugin(plugin)
}

// WithDefaultSpoolWatcher returns a weir Option that enables spool
// watching with default settings (debounce 50ms).
//
// Usage:
//
//	w, err := weir.New(cfg, spoolwatch.WithDefaultSpoolWatcher())
func WithDefaultSpoolWatcher() weir.Option {
	return WithSpoolWatcher(DefaultConfig())
}
