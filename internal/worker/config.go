// Package worker runs the ingestion pipeline as a background job.
package worker

import (
	"time"
)

// IngestConfig holds configuration for the ingest job.
type IngestConfig struct {
	// Timeout bounds one whole run. Zero means no run-level deadline;
	// individual HTTP calls are still bounded by their client timeout.
	Timeout time.Duration

	// Concurrent runs the station sync and the status recording together
	// once the feeds are located.
	// Default: false
	Concurrent bool

	// FeedName and StoreName are the upstream names reported to the
	// resilience registry.
	FeedName  string
	StoreName string
}

// DefaultIngestConfig returns the default ingest configuration.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Timeout:   2 * time.Minute,
		FeedName:  "gbfs",
		StoreName: "store",
	}
}
