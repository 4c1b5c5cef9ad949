// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/strata/internal/domain"
)

// Ingestor defines the primary port for running an ingestion pass.
type Ingestor interface {
	// Run executes one full pass over the corpus.
	Run(ctx context.Context) (*domain.RunReport, error)
}

// ProgressReporter exposes the state of the current run.
type ProgressReporter interface {
	// Progress returns a snapshot of the current run.
	Progress() domain.Progress
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the store connection is established and a run
	// can be served.
	IsReady(ctx context.Context) bool
}
