package build

import (
	"context"
	stderrors "errors"
	"time"

	"git.home.luguber.info/inful/mllt/internal/assets"
	"git.home.luguber.info/inful/mllt/internal/config"
)

// Service executes builds.
type Service interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request contains the inputs of one build.
type Request struct {
	// Settings is the resolved configuration.
	Settings *config.Settings
}

// Stage names used for logs and metrics.
const (
	StageCatalog   = "catalog"
	StageTemplates = "templates"
	StageRender    = "render"
	StageAssets    = "assets"
)

// Result contains the outcome of a build.
type Result struct {
	Status  Status
	BuildID string

	// OutputPath is the directory pages and assets were written to.
	OutputPath string

	Pages          int
	PagesWritten   int
	PagesFailed    int

	// Assets is the report of the asset stage; nil when the build stopped earlier.
	Assets *assets.Report

	// Problems are the per-page and per-asset failures that did not stop the build.
	Problems []error

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Err joins Problems, or returns nil for a clean build.
func (r *Result) Err() error {
	if r == nil || len(r.Problems) == 0 {
		return nil
	}
	return stderrors.Join(r.Problems...)
}

// Status represents the outcome of a build.
type Status string

const (
	// StatusSuccess indicates every page rendered and every asset synchronized.
	StatusSuccess Status = "success"
	// StatusPartial indicates the build finished with per-page or per-asset problems.
	StatusPartial Status = "partial"
	// StatusFailed indicates a fatal error stopped the build.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the context was canceled.
	StatusCanceled Status = "canceled"
)

// IsSuccess reports whether the build finished without problems.
func (s Status) IsSuccess() bool { return s == StatusSuccess }
