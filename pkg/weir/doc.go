// Package weir provides an embeddable agent that merges timestamped
// capture spools into one time-ordered stream with bounded latency.
//
// # Basic Usage
//
// To embed weir in your application:
//
//	cfg := weir.Config{
//	    SpoolDirs: []string{"/var/spool/weir/eth0", "/var/spool/weir/eth1"},
//	    AuthKey:   "your-api-key",
//	    StreamID:  "edge-7",
//	}
//
//	agent, err := weir.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if err := agent.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run until shutdown signal ...
//
//	if err := agent.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Ordering and Latency
//
// Records are released in timestamp order as long as every source keeps
// producing. When one source lags behind the others by more than
// [Config.MaxBufferSpan], buffered records are flushed anyway so that a
// silent source cannot stall the stream indefinitely. Within a flush the
// output is always sorted.
//
// # Configuration
//
// Create a [Config] with at minimum SpoolDirs. All other fields have
// sensible defaults set via [Config.SetDefaults]. Set OutDir to write the
// merged stream to a local spool instead of shipping it over HTTP; the
// output spool is itself mergeable, so weir instances compose.
//
// # Event Handling
//
// To receive notifications about weir operations, implement [EventHandler]
// and pass it via [WithEventHandler]:
//
//	handler := &myEventHandler{}
//	agent, err := weir.New(cfg, weir.WithEventHandler(handler))
//
// Events are called synchronously from the merge goroutine. Implementations
// should return quickly to avoid blocking the merge.
//
// # Dependency Injection
//
// For testing, you can inject custom implementations of external
// dependencies:
//
//	agent, err := weir.New(cfg,
//	    weir.WithHTTPClient(mockClient),
//	    weir.WithLogger(customLogger),
//	)
//
// # Lifecycle States
//
// A Weir instance can be in one of five states: [StateStopped],
// [StateStarting], [StateRunning], [StateStopping], or [StateCrashed]. Use
// [Weir.Status] to query the current state. A run whose sources all drain
// (Follow disabled) ends in [StateStopped] on its own.
//
// # Plugins
//
// Weir supports optional plugins for extended functionality:
//
//	import "github.com/weirlab/weir/plugins/spoolwatch"
//	import "github.com/weirlab/weir/plugins/spoolclean"
//
//	agent, err := weir.New(cfg,
//	    spoolwatch.WithSpoolWatcher(spoolwatch.DefaultConfig()),
//	    spoolclean.WithSpoolCleanup(spoolclean.DefaultConfig()),
//	)
package weir
