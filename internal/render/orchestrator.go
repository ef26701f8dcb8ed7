package render

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/mllt/internal/catalog"
	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/logfields"
	"git.home.luguber.info/inful/mllt/internal/metrics"
)

const outputFileMode = 0o644

// Renderer evaluates the template registered for a page identity.
type Renderer interface {
	Render(identity string, bindings map[string]any) (string, error)
}

// PageResult is the outcome of one page.
type PageResult struct {
	Identity   string
	OutputPath string
	Bytes      int
	// Skipped is set when cancellation prevented the page from being scheduled.
	Skipped bool
	Err     error
}

// Result aggregates a RenderAll run. Pages keep the order they were given in.
type Result struct {
	Pages   []PageResult
	Written int
	Failed  int
	Skipped int
	Bytes   int64
}

// Errors lists the per-page failures in page order.
func (r *Result) Errors() []error {
	var errs []error
	for _, p := range r.Pages {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errs
}

// Orchestrator renders pages concurrently and writes their output files.
type Orchestrator struct {
	settings *config.Settings
	renderer Renderer
	recorder metrics.Recorder
}

// NewOrchestrator creates an orchestrator writing below settings.OutputDir().
func NewOrchestrator(settings *config.Settings, renderer Renderer) *Orchestrator {
	return &Orchestrator{settings: settings, renderer: renderer, recorder: metrics.NoopRecorder{}}
}

// WithRecorder sets the metrics recorder.
func (o *Orchestrator) WithRecorder(r metrics.Recorder) *Orchestrator {
	o.recorder = metrics.OrNoop(r)
	return o
}

// RenderAll renders every page on a pool of settings.Workers() goroutines. A failing page
// does not stop the others. Once ctx is done no further pages are scheduled; pages
// already running complete.
func (o *Orchestrator) RenderAll(ctx context.Context, pages []catalog.Page) *Result {
	results := make([]PageResult, len(pages))

	var g errgroup.Group
	g.SetLimit(o.settings.Workers())
	for i, page := range pages {
		if ctx.Err() != nil {
			results[i] = PageResult{Identity: page.Identity, OutputPath: page.OutputPath(o.settings.OutputDir()), Skipped: true}
			o.recorder.IncPageResult(metrics.ResultCanceled)
			continue
		}
		i, page := i, page
		g.Go(func() error {
			results[i] = o.renderPage(page)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Pages: results}
	for _, p := range results {
		switch {
		case p.Skipped:
			res.Skipped++
		case p.Err != nil:
			res.Failed++
		default:
			res.Written++
			res.Bytes += int64(p.Bytes)
		}
	}
	return res
}

func (o *Orchestrator) renderPage(page catalog.Page) PageResult {
	res := PageResult{Identity: page.Identity, OutputPath: page.OutputPath(o.settings.OutputDir())}

	out, err := o.renderer.Render(page.Identity, NewContext(o.settings, page).Bindings())
	if err != nil {
		res.Err = err
		slog.Warn("Page render failed", logfields.Page(page.Identity), logfields.Error(err))
		o.recorder.IncPageResult(metrics.ResultFailed)
		return res
	}
	res.Bytes = len(out)

	err = writePage(res.OutputPath, out)
	if err != nil {
		res.Err = errors.WrapError(err, errors.CategoryFileSystem, "failed to write page output").
			WithContext("page", page.Identity).
			WithContext("path", res.OutputPath).
			Build()
		slog.Warn("Page write failed", logfields.Page(page.Identity), logfields.Error(err))
		o.recorder.IncPageResult(metrics.ResultFailed)
		return res
	}

	slog.Debug("Page rendered", logfields.Page(page.Identity), logfields.Path(res.OutputPath))
	o.recorder.IncPageResult(metrics.ResultSuccess)
	return res
}

// writePage replaces path with content through a temp file and rename. Pages are
// always rewritten, whatever the file held before.
func writePage(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return err
	}
	return os.Chmod(path, outputFileMode)
}
