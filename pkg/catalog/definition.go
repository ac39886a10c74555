// Package catalog defines ServerDefinition, the persisted descriptor of an
// installable MCP backend, and loads/validates the static catalog bundled
// with the binary.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Transport mirrors transport.Kind without importing pkg/transport, keeping
// the data-model package free of the I/O package's dependencies.
type Transport string

const (
	// TransportStdio launches a local subprocess.
	TransportStdio Transport = "stdio"
	// TransportHTTP forwards to a remote endpoint.
	TransportHTTP Transport = "http"
)

// ServerDefinition is the persisted descriptor of an installable backend.
// Name is the registry key and must be unique.
type ServerDefinition struct {
	ID        int64             `json:"id,omitempty"`
	Name      string            `json:"name"`
	Transport Transport         `json:"transport"`
	Command   string            `json:"command"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	Meta      map[string]any    `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// Sentinel validation errors.
var (
	ErrEmptyName           = errors.New("catalog: server name must not be empty")
	ErrUnknownTransport    = errors.New("catalog: transport must be \"stdio\" or \"http\"")
	ErrHTTPMissingURL      = errors.New("catalog: http transport requires args[0] to be an absolute URL")
	ErrHTTPInvalidURL      = errors.New("catalog: http transport args[0] is not a valid absolute URL")
	ErrStdioMissingCommand = errors.New("catalog: stdio transport requires a command")
)

// Validate checks a ServerDefinition's invariants: non-empty name (the
// uniqueness half is checked by the caller against the registry, not here)
// and the transport-specific shape of command/args/env.
func (d ServerDefinition) Validate() error {
	if d.Name == "" {
		return ErrEmptyName
	}

	switch d.Transport {
	case TransportStdio:
		if d.Command == "" {
			return ErrStdioMissingCommand
		}
	case TransportHTTP:
		if len(d.Args) == 0 || d.Args[0] == "" {
			return ErrHTTPMissingURL
		}
		u, err := url.Parse(d.Args[0])
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("%w: %q", ErrHTTPInvalidURL, d.Args[0])
		}
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownTransport, d.Transport)
	}
	return nil
}

// Merge returns a copy of d with every non-zero field of patch applied on
// top, used by the supervisor's update protocol to combine a partial update
// with the persisted definition. Name is never overwritten by Merge —
// updates to a running server never rename it.
func (d ServerDefinition) Merge(ctx context.Context, patch ServerDefinition) (ServerDefinition, error) {
	return mergeDefinitions(ctx, d, patch)
}
