// Package preview serves a built site over HTTP and rebuilds it when its sources change.
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/mllt/internal/build"
	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/logfields"
	"git.home.luguber.info/inful/mllt/internal/metrics"
)

const (
	debounceDelay   = 300 * time.Millisecond
	shutdownTimeout = 5 * time.Second
	statusPath      = "/_mllt/status"
	metricsPath     = "/metrics"
)

var newWatcher = fsnotify.NewWatcher

// Options configures the preview server.
type Options struct {
	Host string
	Port int
	// Resolve loads the settings for each build, so configuration edits apply on the
	// next rebuild.
	Resolve func() (*config.Settings, error)
	Service build.Service
	// Registry backs the /metrics endpoint; nil disables it.
	Registry *prom.Registry
}

// buildStatus tracks the outcome of the latest build for the status endpoint and error
// display.
type buildStatus struct {
	mu           sync.RWMutex
	lastError    error
	hasGoodBuild bool
	settings     *config.Settings
	result       *build.Result
	builds       int
}

func (bs *buildStatus) record(settings *config.Settings, result *build.Result, err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.builds++
	if settings != nil {
		bs.settings = settings
	}
	bs.result = result
	if err == nil && result != nil {
		err = result.Err()
	}
	bs.lastError = err
	if err == nil {
		bs.hasGoodBuild = true
	}
}

func (bs *buildStatus) outputDir() string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if bs.settings == nil {
		return ""
	}
	return bs.settings.OutputDir()
}

// Snapshot is the JSON document served at the status endpoint.
type Snapshot struct {
	OK           bool      `json:"ok"`
	HasGoodBuild bool      `json:"has_good_build"`
	Builds       int       `json:"builds"`
	Error        string    `json:"error,omitempty"`
	BuildID      string    `json:"build_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Pages        int       `json:"pages"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
}

func (bs *buildStatus) snapshot() Snapshot {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	s := Snapshot{OK: bs.lastError == nil, HasGoodBuild: bs.hasGoodBuild, Builds: bs.builds}
	if bs.lastError != nil {
		s.Error = bs.lastError.Error()
	}
	if r := bs.result; r != nil {
		s.BuildID = r.BuildID
		s.Status = string(r.Status)
		s.Pages = r.Pages
		s.FinishedAt = r.EndTime
		s.DurationMS = r.Duration.Milliseconds()
	}
	return s
}

// Run builds the site, serves it and rebuilds on change until ctx is done. Invalid
// settings at startup are returned; later they only fail the rebuild.
func Run(ctx context.Context, opts Options) error {
	if opts.Resolve == nil || opts.Service == nil {
		return errors.InternalError("preview requires a settings resolver and a build service").Build()
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}

	settings, err := opts.Resolve()
	if err != nil {
		return err
	}

	// The watcher is created before the server starts so a failure leaves nothing running.
	watcher, err := newWatcher()
	if err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "failed to create file watcher").Build()
	}
	defer func() { _ = watcher.Close() }()
	w := &watchSet{watcher: watcher, added: map[string]bool{}}
	w.addRoots(settings)

	status := &buildStatus{}
	runBuild(ctx, opts.Service, status, settings)

	server := &http.Server{
		Addr:              net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Handler:           newHandler(status, opts.Registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "failed to start preview server").
			WithContext("addr", server.Addr).
			Build()
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("Preview server stopped", logfields.Error(err))
		}
	}()
	slog.Info("Preview server listening", slog.String("url", "http://"+listener.Addr().String()))

	loopCtx, stop := context.WithCancel(ctx)
	rebuildReq, trigger := setupRebuildDebouncer(debounceDelay)
	done := startRebuildWorker(loopCtx, rebuildReq, func() {
		s, err := opts.Resolve()
		if err != nil {
			slog.Error("Configuration invalid; keeping previous output", logfields.Error(err))
			status.record(nil, nil, err)
			return
		}
		runBuild(loopCtx, opts.Service, status, s)
		w.addRoots(s)
	})

	err = runLoop(loopCtx, w, status, trigger)
	stop()
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		slog.Warn("Preview server shutdown error", logfields.Error(serr))
	}
	return err
}

// runBuild runs one build and records its outcome.
func runBuild(ctx context.Context, svc build.Service, status *buildStatus, settings *config.Settings) {
	result, err := svc.Run(ctx, build.Request{Settings: settings})
	switch {
	case err != nil:
		slog.Warn("Build failed", logfields.Error(err))
	case result.Err() != nil:
		slog.Warn("Build finished with problems", logfields.Count(len(result.Problems)))
	}
	status.record(settings, result, err)
}

func runLoop(ctx context.Context, w *watchSet, status *buildStatus, trigger func()) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down preview server")
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev, status.outputDir()) {
				if ev.Op&fsnotify.Create == fsnotify.Create {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						w.addRecursive(ev.Name)
					}
				}
				slog.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
				trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// setupRebuildDebouncer returns the rebuild channel and a trigger that sends on it once
// no further trigger arrived for delay.
func setupRebuildDebouncer(delay time.Duration) (chan struct{}, func()) {
	var mu sync.Mutex
	var timer *time.Timer
	rebuildReq := make(chan struct{}, 1)

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			select {
			case rebuildReq <- struct{}{}:
			default:
			}
		})
	}
	return rebuildReq, trigger
}

// startRebuildWorker runs fn for each request until ctx is done. The request channel
// holds one slot, so triggers arriving during a rebuild coalesce into one follow-up run.
// The returned channel closes when the worker exits.
func startRebuildWorker(ctx context.Context, rebuildReq chan struct{}, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-rebuildReq:
				slog.Info("Change detected; rebuilding site")
				fn()
			}
		}
	}()
	return done
}

// watchSet tracks the directories being watched.
type watchSet struct {
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	added      map[string]bool
	configFile string
}

func (w *watchSet) addRoots(s *config.Settings) {
	for _, root := range []string{s.ContentDir(), s.ThemeDir(), s.AssetsDir()} {
		w.addRecursive(root)
	}
	if cfg := s.ConfigPath(); cfg != "" {
		w.mu.Lock()
		w.configFile = filepath.Clean(cfg)
		w.mu.Unlock()
		// The directory is watched rather than the file so editors that replace the
		// file on save keep triggering events.
		w.add(filepath.Dir(cfg))
	}
}

func (w *watchSet) add(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.added[abs] {
		return
	}
	if err := w.watcher.Add(abs); err != nil {
		slog.Warn("Watch add failed", logfields.Path(abs), logfields.Error(err))
		return
	}
	w.added[abs] = true
}

func (w *watchSet) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			w.add(p)
		}
		return nil
	})
}

// relevant reports whether an event should trigger a rebuild. Events below the output
// directory and editor artifacts are ignored; in the configuration directory only the
// configuration file and nested source roots count.
func (w *watchSet) relevant(ev fsnotify.Event, outputDir string) bool {
	if shouldIgnoreEvent(ev.Name) {
		return false
	}
	name, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	if outputDir != "" {
		if out, err := filepath.Abs(outputDir); err == nil && within(name, out) {
			return false
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.configFile != "" {
		cfg, _ := filepath.Abs(w.configFile)
		if filepath.Dir(name) == filepath.Dir(cfg) && name != cfg && !w.added[name] {
			return false
		}
	}
	return true
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// shouldIgnoreEvent returns true for filesystem events that should not trigger rebuilds.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}

func newHandler(status *buildStatus, reg *prom.Registry) http.Handler {
	mux := http.NewServeMux()
	if reg != nil {
		mux.Handle(metricsPath, metrics.HTTPHandler(reg))
	}
	mux.HandleFunc(statusPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(status.snapshot())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		snap := status.snapshot()
		out := status.outputDir()
		if !snap.HasGoodBuild && snap.Error != "" || out == "" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "mllt: build failed\n\n%s\n", snap.Error)
			return
		}
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		http.FileServer(http.Dir(out)).ServeHTTP(w, r)
	})
	return mux
}
