package weir_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/weirlab/weir/pkg/weir"
	"github.com/weirlab/weir/plugins/spoolclean"
	"github.com/weirlab/weir/plugins/spoolwatch"
)

// Example demonstrates basic usage: merge two capture spools and ship the
// result to the ingest service.
func Example() {
	cfg := weir.Config{
		SpoolDirs: []string{"/var/spool/weir/eth0", "/var/spool/weir/eth1"},
		AuthKey:   "your-api-key",
		StreamID:  "edge-7",
		Follow:    true,
	}

	agent, err := weir.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	if err := agent.Start(context.Background()); err != nil {
		log.Fatal(err)
	}

	// ... run until shutdown signal ...

	if err := agent.Stop(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// ExampleNew_plugins enables the spool watcher and cleanup plugins.
func ExampleNew_plugins() {
	cfg := weir.Config{
		SpoolDirs: []string{"/var/spool/weir/eth0"},
		OutDir:    "/var/spool/weir/merged",
		Follow:    true,
	}

	agent, err := weir.New(cfg,
		spoolwatch.WithDefaultSpoolWatcher(),
		spoolclean.WithSpoolCleanup(spoolclean.Config{
			CheckInterval: 30 * time.Minute,
		}),
	)
	if err != nil {
		log.Fatal(err)
	}
	_ = agent
}

// ExampleWithEventHandler receives merge lifecycle and shipment events.
func ExampleWithEventHandler() {
	handler := &loggingHandler{}

	cfg := weir.Config{
		SpoolDirs: []string{"/var/spool/weir/eth0"},
	}

	agent, err := weir.New(cfg, weir.WithEventHandler(handler))
	if err != nil {
		log.Fatal(err)
	}
	_ = agent
}

type loggingHandler struct{}

func (h *loggingHandler) OnStateChange(e weir.StateChangeEvent) {
	fmt.Printf("state: %s -> %s (%s)\n", e.Previous, e.Current, e.Reason)
}

func (h *loggingHandler) OnShipSuccess(e weir.ShipSuccessEvent) {
	fmt.Printf("shipped %d records in %v\n", e.RecordCount, e.Duration)
}

func (h *loggingHandler) OnShipError(e weir.ShipErrorEvent) {
	fmt.Printf("ship failed: %v\n", e.Error)
}
