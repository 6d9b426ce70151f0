package spoolclean

import "github.com/weirlab/weir/pkg/weir"

// WithSpoolCleanup returns a weir Option that enables automatic spool
// cleanup. Segments whose newest record is at or before the persisted
// emitted horizon are removed.
//
// Usage:
//
//	w, err := weir.New(cfg,
//	    spoolclean.WithSpoolCleanup(spoolclean.Config{
//	        CheckInterval: 10 * time.Minute,
//	    }),
//	)
func WithSpoolCleanup(cfg Config) weir.Option {
	plugin := New(cfg)
	return weir.WithPlugin(plugin)
}

// WithDefaultSpoolCleanup returns a weir Option that enables spool
// cleanup with default settings (scan every 10 minutes).
//
// Usage:
//
//	w, err := weir.New(cfg, spoolclean.WithDefaultSpoolCleanup())
func WithDefaultSpoolCleanup() weir.Option {
	return WithSpoolCleanup(DefaultConfig())
}
