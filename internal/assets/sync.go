package assets

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/logfields"
	"git.home.luguber.info/inful/mllt/internal/metrics"
	"git.home.luguber.info/inful/mllt/internal/util/sets"
)

// Action is what a sync does with one path.
type Action string

const (
	ActionCopy     Action = "copy"
	ActionSkip     Action = "skip"
	ActionDelete   Action = "delete"
	ActionConflict Action = "conflict"
)

// Step is the planned action for one relative path.
type Step struct {
	Rel    string
	Action Action
	Reason string
	// Entry is the source file; zero for deletions.
	Entry Entry
	// Signature of the source as it will be recorded in the manifest.
	Signature Signature
}

// Plan is the ordered list of steps of one sync: source entries first (by path), then
// deletions (by path).
type Plan struct {
	Steps []Step
}

// Count returns the number of steps with action a.
func (p *Plan) Count(a Action) int {
	n := 0
	for _, s := range p.Steps {
		if s.Action == a {
			n++
		}
	}
	return n
}

// Report is the outcome of Sync.
type Report struct {
	Plan      *Plan
	Copied    int
	Skipped   int
	Deleted   int
	Conflicts int
	Bytes     int64
	Problems  []error
}

// Options configures a Synchronizer.
type Options struct {
	Source  string
	Output  string
	Compare config.AssetCompare
	Prune   bool
	Workers int
	// Reserved holds slash-separated output paths owned by rendered pages.
	Reserved sets.Set[string]
}

// Synchronizer mirrors Options.Source into Options.Output.
type Synchronizer struct {
	opts     Options
	recorder metrics.Recorder
}

// NewSynchronizer creates a synchronizer from resolved settings. reserved lists page
// output paths assets must not overwrite.
func NewSynchronizer(settings *config.Settings, reserved sets.Set[string]) *Synchronizer {
	return New(Options{
		Source:   settings.AssetsDir(),
		Output:   settings.OutputDir(),
		Compare:  settings.AssetCompare(),
		Prune:    settings.Prune(),
		Workers:  settings.Workers(),
		Reserved: reserved,
	})
}

// New creates a synchronizer from explicit options.
func New(opts Options) *Synchronizer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Compare == "" {
		opts.Compare = config.AssetCompareMTime
	}
	return &Synchronizer{opts: opts, recorder: metrics.NoopRecorder{}}
}

// WithRecorder sets the metrics recorder.
func (s *Synchronizer) WithRecorder(r metrics.Recorder) *Synchronizer {
	s.recorder = metrics.OrNoop(r)
	return s
}

// Plan compares the asset tree with the output tree without modifying either.
func (s *Synchronizer) Plan(ctx context.Context) (*Plan, error) {
	entries, err := Scan(s.opts.Source)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	present := make(sets.Set[string], len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		present.Add(e.Rel)
		plan.Steps = append(plan.Steps, s.planEntry(e))
	}

	if s.opts.Prune {
		manifest := LoadManifest(s.opts.Output)
		var stale []string
		for rel := range manifest.Files {
			if present.Has(rel) || s.reserved(rel) {
				continue
			}
			stale = append(stale, rel)
		}
		sort.Strings(stale)
		for _, rel := range stale {
			plan.Steps = append(plan.Steps, Step{Rel: rel, Action: ActionDelete, Reason: "source removed"})
		}
	}
	return plan, nil
}

func (s *Synchronizer) planEntry(e Entry) Step {
	step := Step{Rel: e.Rel, Entry: e}
	if s.reserved(e.Rel) {
		step.Action = ActionConflict
		step.Reason = "path is produced by a page"
		return step
	}
	if e.Rel == ManifestName {
		step.Action = ActionConflict
		step.Reason = "path is the asset manifest"
		return step
	}

	src := filepath.Join(s.opts.Source, filepath.FromSlash(e.Rel))
	dst := filepath.Join(s.opts.Output, filepath.FromSlash(e.Rel))

	srcInfo, err := os.Stat(src)
	if err != nil {
		step.Action, step.Reason = ActionCopy, "source changed during scan"
		return step
	}
	srcSig, err := signatureOf(src, srcInfo, s.opts.Compare)
	if err != nil {
		step.Action, step.Reason = ActionCopy, "source unreadable"
		return step
	}
	step.Signature = srcSig

	dstInfo, err := os.Stat(dst)
	switch {
	case err != nil:
		step.Action, step.Reason = ActionCopy, "missing in output"
	case dstInfo.IsDir():
		step.Action, step.Reason = ActionConflict, "output path is a directory"
	default:
		dstSig, err := signatureOf(dst, dstInfo, s.opts.Compare)
		if err != nil || !srcSig.Equal(dstSig) {
			step.Action, step.Reason = ActionCopy, "signature differs"
		} else {
			step.Action, step.Reason = ActionSkip, "up to date"
		}
	}
	return step
}

func (s *Synchronizer) reserved(rel string) bool {
	return s.opts.Reserved.Len() > 0 && s.opts.Reserved.Has(norm.NFC.String(rel))
}

// Sync plans and executes one synchronization. Copies and deletions run on a pool of
// Options.Workers goroutines; a failing entry is reported in Report.Problems and does
// not stop the others. The manifest is rewritten afterwards. The returned error is set
// only when nothing could be planned.
func (s *Synchronizer) Sync(ctx context.Context) (*Report, error) {
	plan, err := s.Plan(ctx)
	if err != nil {
		return nil, err
	}

	previous := LoadManifest(s.opts.Output)
	report := &Report{Plan: plan}
	errs := make([]error, len(plan.Steps))

	for i, step := range plan.Steps {
		if step.Action == ActionConflict {
			errs[i] = errors.AssetCopyError("asset conflicts with output").
				WithContext("asset", step.Rel).
				WithContext("reason", step.Reason).
				Build()
		}
	}
	// Copies finish before any delete: pruning removes emptied directories.
	s.run(ctx, plan, ActionCopy, errs, s.copy)
	s.run(ctx, plan, ActionDelete, errs, s.remove)

	next := newManifest()
	for i, step := range plan.Steps {
		err := errs[i]
		if err != nil {
			report.Problems = append(report.Problems, err)
			slog.Warn("Asset sync failed", logfields.Asset(step.Rel), logfields.Action(string(step.Action)), logfields.Error(err))
		}
		switch step.Action {
		case ActionSkip:
			report.Skipped++
			next.Files[step.Rel] = step.Signature
		case ActionCopy:
			if err == nil {
				report.Copied++
				report.Bytes += step.Entry.Size
				next.Files[step.Rel] = step.Signature
				s.recorder.AddAssetBytes(step.Entry.Size)
			} else if sig, ok := previous.Files[step.Rel]; ok {
				next.Files[step.Rel] = sig
			}
		case ActionDelete:
			if err == nil {
				report.Deleted++
			} else {
				next.Files[step.Rel] = previous.Files[step.Rel]
			}
		case ActionConflict:
			report.Conflicts++
		}
		if err == nil {
			s.recorder.IncAssetAction(string(step.Action))
		}
	}

	if !s.opts.Prune {
		for rel, sig := range previous.Files {
			if _, ok := next.Files[rel]; !ok && !s.reserved(rel) {
				next.Files[rel] = sig
			}
		}
	}

	if err := next.Save(s.opts.Output); err != nil {
		report.Problems = append(report.Problems, errors.WrapError(err, errors.CategoryFileSystem, "failed to write asset manifest").
			WithContext("path", filepath.Join(s.opts.Output, ManifestName)).
			Build())
	}

	slog.Debug("Assets synchronized",
		slog.Int("copied", report.Copied),
		slog.Int("skipped", report.Skipped),
		slog.Int("deleted", report.Deleted),
		slog.Int("conflicts", report.Conflicts))
	return report, nil
}

// run executes the steps with action a on the worker pool. Steps not yet started when
// ctx is done are left out and keep their previous manifest entry.
func (s *Synchronizer) run(ctx context.Context, plan *Plan, a Action, errs []error, fn func(Step) error) {
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, step := range plan.Steps {
		if step.Action != a {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs[i] = errors.WrapError(err, errors.CategoryRuntime, "asset sync canceled").
				WithContext("asset", step.Rel).
				Build()
			continue
		}
		i, step := i, step
		g.Go(func() error {
			errs[i] = fn(step)
			return nil
		})
	}
	_ = g.Wait()
}

// copy writes the source through a temp file and rename, then applies the source mode
// and modification time so the next plan sees equal signatures.
func (s *Synchronizer) copy(step Step) error {
	src := filepath.Join(s.opts.Source, filepath.FromSlash(step.Rel))
	dst := filepath.Join(s.opts.Output, filepath.FromSlash(step.Rel))

	fail := func(err error, msg string) error {
		return errors.WrapError(err, errors.CategoryAssetCopy, msg).
			WithContext("asset", step.Rel).
			WithContext("path", dst).
			Build()
	}

	in, err := os.Open(src)
	if err != nil {
		return fail(err, "failed to open asset")
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fail(err, "failed to stat asset")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fail(err, "failed to create asset directory")
	}
	if err := atomic.WriteFile(dst, in); err != nil {
		return fail(err, "failed to copy asset")
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fail(err, "failed to set asset mode")
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fail(err, "failed to set asset modification time")
	}
	slog.Debug("Asset copied", logfields.Asset(step.Rel), slog.String("reason", step.Reason))
	return nil
}

// remove deletes a pruned file and the directories it leaves empty, stopping at the
// output root.
func (s *Synchronizer) remove(step Step) error {
	dst := filepath.Join(s.opts.Output, filepath.FromSlash(step.Rel))
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return errors.WrapError(err, errors.CategoryAssetCopy, "failed to prune asset").
			WithContext("asset", step.Rel).
			WithContext("path", dst).
			Build()
	}
	removeEmptyParents(filepath.Dir(dst), s.opts.Output)
	slog.Debug("Asset pruned", logfields.Asset(step.Rel))
	return nil
}

func removeEmptyParents(dir, root string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root; dir = filepath.Dir(dir) {
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}
		// Remove fails on non-empty directories, which ends the walk.
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
