// Package weir re-exports the embeddable merge agent from pkg/weir for
// convenient import by module path.
//
// Example usage:
//
//	cfg := weir.Config{
//	    SpoolDirs: []string{"/var/spool/weir/eth0"},
//	    AuthKey:   "your-api-key",
//	}
//	agent, err := weir.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := agent.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package weir

import (
	embed "github.com/weirlab/weir/pkg/weir"
)

// Config holds the configuration for the merge agent.
type Config = embed.Config

// Weir is the embeddable merge agent.
type Weir = embed.Weir

// Option configures optional behavior of the agent.
type Option = embed.Option

// State represents the lifecycle state of the agent.
type State = embed.State

// New creates a new merge agent with the given configuration.
func New(cfg Config, opts ...Option) (*Weir, error) {
	return embed.New(cfg, opts...)
}

// DefaultServiceURL is the default endpoint for shipping merged records.
const DefaultServiceURL = embed.DefaultServiceURL
