package calcflow

import (
	"log/slog"
	"time"
)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client and its broker interface.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWorkflowCatalogTimeout overrides how long Start waits for the first
// workflow catalog from the orchestrator.
func WithWorkflowCatalogTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.catalogTimeout = d
		}
	}
}
