package weir

import (
	"net/http"

	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/sink"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = sink.HTTPClient

// Logger is the structured logging interface from pkg/log.
type Logger = log.Logger

// Option configures optional behavior of Weir.
type Option func(*options)

// options holds the optional configuration for a Weir instance.
type options struct {
	httpClient   HTTPClient
	logger       Logger
	eventHandler EventHandler
	plugins      []Plugin
	metricsAddr  string
}

// defaultOptions returns options with sensible defaults.
func defaultOptions(client *http.Client) options {
	return options{
		httpClient:   client,
		logger:       log.NewNoopLogger(),
		eventHandler: nil,
		plugins:      nil,
	}
}

// WithHTTPClient sets a custom HTTP client for shipping.
// If not provided, a default client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for Weir events.
// Events are called synchronously from the merge goroutine.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when Weir starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithMetricsAddr exposes Prometheus metrics on the given listen address
// while the instance is running. Empty disables the metrics server.
func WithMetricsAddr(addr string) Option {
	return func(o *options) {
		o.metricsAddr = addr
	}
}
