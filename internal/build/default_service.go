package build

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/mllt/internal/assets"
	"git.home.luguber.info/inful/mllt/internal/catalog"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/metrics"
	"git.home.luguber.info/inful/mllt/internal/observability"
	"git.home.luguber.info/inful/mllt/internal/render"
	"git.home.luguber.info/inful/mllt/internal/templates"
)

// HelperSet registers additional template helpers on a fresh registry.
type HelperSet func(r *templates.Registry)

// DefaultService is the standard Service implementation.
type DefaultService struct {
	recorder metrics.Recorder
	newID    func() string
	helpers  []HelperSet
}

// NewService creates a service with a noop recorder.
func NewService() *DefaultService {
	return &DefaultService{
		recorder: metrics.NoopRecorder{},
		newID:    func() string { return uuid.NewString() },
	}
}

// WithRecorder sets the metrics recorder.
func (s *DefaultService) WithRecorder(r metrics.Recorder) *DefaultService {
	s.recorder = metrics.OrNoop(r)
	return s
}

// WithHelpers adds helper sets applied to the registry of every build.
func (s *DefaultService) WithHelpers(sets ...HelperSet) *DefaultService {
	s.helpers = append(s.helpers, sets...)
	return s
}

// Run executes the build pipeline. Fatal errors (configuration, catalog, template load,
// output directory) are returned; per-page and per-asset failures end up in
// Result.Problems with Status partial.
func (s *DefaultService) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result := &Result{StartTime: start, BuildID: s.newID()}
	ctx = observability.WithBuildID(ctx, result.BuildID)

	fail := func(stage string, err error) (*Result, error) {
		label, outcome := metrics.ResultFatal, metrics.BuildOutcomeFailed
		result.Status = StatusFailed
		if ctx.Err() != nil {
			label, outcome = metrics.ResultCanceled, metrics.BuildOutcomeCanceled
			result.Status = StatusCanceled
		}
		s.finish(result)
		s.recorder.IncStageResult(stage, label)
		s.recorder.IncBuildOutcome(outcome)
		observability.ErrorContext(observability.WithStage(ctx, stage), "Build failed", slog.String("error", err.Error()))
		return result, err
	}

	if req.Settings == nil {
		return fail(StageCatalog, errors.ConfigError("settings required").Build())
	}
	settings := req.Settings
	result.OutputPath = settings.OutputDir()

	// Stage 1: catalog
	stageStart := time.Now()
	stageCtx := observability.WithStage(ctx, StageCatalog)
	cat, err := catalog.Build(settings.ContentDir())
	if err != nil {
		return fail(StageCatalog, err)
	}
	result.Pages = cat.Len()
	s.stageDone(StageCatalog, stageStart)
	observability.InfoContext(stageCtx, "Content cataloged",
		slog.Int("pages", cat.Len()),
		slog.String("content", settings.ContentDir()))

	// Stage 2: templates
	stageStart = time.Now()
	stageCtx = observability.WithStage(ctx, StageTemplates)
	registry := templates.NewRegistry(settings.Strict())
	for _, set := range s.helpers {
		set(registry)
	}
	if err := registry.LoadTheme(settings.ThemeDir()); err != nil {
		return fail(StageTemplates, err)
	}
	for _, page := range cat.Pages() {
		if err := registry.AddPage(page); err != nil {
			return fail(StageTemplates, err)
		}
	}
	s.stageDone(StageTemplates, stageStart)
	observability.DebugContext(stageCtx, "Templates loaded",
		slog.Int("partials", len(registry.Partials())),
		slog.Bool("strict", settings.Strict()))

	// Stage 3: render
	stageStart = time.Now()
	stageCtx = observability.WithStage(ctx, StageRender)
	if err := os.MkdirAll(settings.OutputDir(), 0o755); err != nil {
		return fail(StageRender, errors.WrapError(err, errors.CategoryFileSystem, "failed to create output directory").
			Fatal().
			WithContext("path", settings.OutputDir()).
			Build())
	}
	rendered := render.NewOrchestrator(settings, registry).
		WithRecorder(s.recorder).
		RenderAll(stageCtx, cat.Pages())
	result.PagesWritten = rendered.Written
	result.PagesFailed = rendered.Failed
	result.Problems = append(result.Problems, rendered.Errors()...)
	if err := ctx.Err(); err != nil {
		return fail(StageRender, err)
	}
	s.stageDone(StageRender, stageStart)
	observability.InfoContext(stageCtx, "Pages rendered",
		slog.Int("written", rendered.Written),
		slog.Int("failed", rendered.Failed),
		slog.String("size", humanize.Bytes(uint64(rendered.Bytes))))

	// Stage 4: assets
	stageStart = time.Now()
	stageCtx = observability.WithStage(ctx, StageAssets)
	report, err := assets.NewSynchronizer(settings, cat.OutputSet()).
		WithRecorder(s.recorder).
		Sync(stageCtx)
	if err != nil {
		return fail(StageAssets, err)
	}
	result.Assets = report
	result.Problems = append(result.Problems, report.Problems...)
	if err := ctx.Err(); err != nil {
		return fail(StageAssets, err)
	}
	s.stageDone(StageAssets, stageStart)
	observability.InfoContext(stageCtx, "Assets synchronized",
		slog.Int("copied", report.Copied),
		slog.Int("skipped", report.Skipped),
		slog.Int("deleted", report.Deleted),
		slog.String("size", humanize.Bytes(uint64(report.Bytes))))

	result.Status = StatusSuccess
	outcome := metrics.BuildOutcomeSuccess
	if len(result.Problems) > 0 {
		result.Status = StatusPartial
		outcome = metrics.BuildOutcomePartial
	}
	s.finish(result)
	s.recorder.IncBuildOutcome(outcome)
	s.recorder.ObserveBuildDuration(result.Duration)

	observability.InfoContext(ctx, "Build complete",
		slog.String("status", string(result.Status)),
		slog.Int("pages", result.Pages),
		slog.Int("problems", len(result.Problems)),
		slog.String("output", result.OutputPath),
		slog.String("duration", result.Duration.Round(time.Millisecond).String()))
	return result, nil
}

func (s *DefaultService) stageDone(stage string, start time.Time) {
	s.recorder.ObserveStageDuration(stage, time.Since(start))
	s.recorder.IncStageResult(stage, metrics.ResultSuccess)
}

func (s *DefaultService) finish(r *Result) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}
