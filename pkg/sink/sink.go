// Package sink delivers merged batches downstream: over HTTP as multipart
// uploads, or back into a spool directory for later consumption.
package sink

import (
	"context"
	"net/http"

	"github.com/weirlab/weir/pkg/record"
)

// Metadata accompanies every shipment.
type Metadata struct {
	// ServiceURL is the base URL of the receiving service, without a
	// trailing slash.
	ServiceURL string

	// AuthKey is the bearer token for the receiving service.
	AuthKey string

	// StreamID identifies the merged stream to the receiver.
	StreamID string

	// Hostname identifies the shipping host.
	Hostname string
}

// Sink delivers one merged batch. Implementations must be safe to call
// again after an error; the caller retries with backoff.
type Sink interface {
	Ship(ctx context.Context, batch record.Batch, meta Metadata) error
}

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
