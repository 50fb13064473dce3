// Package store persists completed pipeline runs as a local history log so
// staff can revisit past discovery output. Job state stays in memory; this
// log is an append-only record of finished runs, not a job queue.
package store

import (
	"context"

	"github.com/communityforge/scout/internal/model"
)

// RunFilter narrows ListRuns results.
type RunFilter struct {
	City     string         `json:"city,omitempty"`
	State    string         `json:"state,omitempty"`
	Category model.Category `json:"category,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// Store is the run-history persistence interface.
type Store interface {
	SaveRun(ctx context.Context, run *model.PipelineRun) error
	GetRun(ctx context.Context, id string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	Migrate(ctx context.Context) error
	Close() error
}
