package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/util/sets"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

type fixture struct {
	src, out string
	base     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		src:  filepath.Join(root, "assets"),
		out:  filepath.Join(root, "html"),
		base: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	writeFile(t, filepath.Join(f.src, "style.css"), "body{}", f.base)
	writeFile(t, filepath.Join(f.src, "img", "logo.svg"), "<svg/>", f.base)
	writeFile(t, filepath.Join(f.src, "js", "deep", "app.js"), "console.log(1)", f.base)
	return f
}

func (f *fixture) sync(t *testing.T, opts Options) *Report {
	t.Helper()
	opts.Source, opts.Output = f.src, f.out
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	report, err := New(opts).Sync(context.Background())
	require.NoError(t, err)
	return report
}

func TestSyncCopiesThenIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first := f.sync(t, Options{Prune: true})
	require.Empty(t, first.Problems)
	require.Equal(t, 3, first.Copied)
	require.Equal(t, int64(len("body{}")+len("<svg/>")+len("console.log(1)")), first.Bytes)

	data, err := os.ReadFile(filepath.Join(f.out, "js", "deep", "app.js"))
	require.NoError(t, err)
	require.Equal(t, "console.log(1)", string(data))
	info, err := os.Stat(filepath.Join(f.out, "style.css"))
	require.NoError(t, err)
	require.True(t, info.ModTime().Equal(f.base))

	second := f.sync(t, Options{Prune: true})
	require.Empty(t, second.Problems)
	require.Equal(t, 0, second.Copied)
	require.Equal(t, 3, second.Skipped)
}

func TestSyncCopiesOnlyChangedFile(t *testing.T) {
	f := newFixture(t)
	f.sync(t, Options{Prune: true})

	writeFile(t, filepath.Join(f.src, "style.css"), "body{margin:0}", f.base.Add(time.Minute))

	report := f.sync(t, Options{Prune: true})
	require.Equal(t, 1, report.Copied)
	require.Equal(t, 2, report.Skipped)
	data, err := os.ReadFile(filepath.Join(f.out, "style.css"))
	require.NoError(t, err)
	require.Equal(t, "body{margin:0}", string(data))
}

func TestSyncPrunesOnlyManifestFiles(t *testing.T) {
	f := newFixture(t)
	f.sync(t, Options{Prune: true})

	foreign := filepath.Join(f.out, "js", "deep", "vendor.js")
	writeFile(t, foreign, "not ours", f.base)
	require.NoError(t, os.Remove(filepath.Join(f.src, "img", "logo.svg")))

	report := f.sync(t, Options{Prune: true})
	require.Empty(t, report.Problems)
	require.Equal(t, 1, report.Deleted)
	require.NoFileExists(t, filepath.Join(f.out, "img", "logo.svg"))
	require.NoDirExists(t, filepath.Join(f.out, "img"))
	require.FileExists(t, foreign)
	require.DirExists(t, f.out)

	require.NoError(t, os.RemoveAll(filepath.Join(f.src, "js")))
	report = f.sync(t, Options{Prune: true})
	require.Equal(t, 1, report.Deleted)
	require.NoFileExists(t, filepath.Join(f.out, "js", "deep", "app.js"))
	require.FileExists(t, foreign, "files never recorded in the manifest are never deleted")
}

func TestSyncWithoutPruneKeepsFiles(t *testing.T) {
	f := newFixture(t)
	f.sync(t, Options{Prune: true})
	require.NoError(t, os.Remove(filepath.Join(f.src, "style.css")))

	report := f.sync(t, Options{Prune: false})
	require.Equal(t, 0, report.Deleted)
	require.FileExists(t, filepath.Join(f.out, "style.css"))

	// The file stays recorded, so enabling pruning later removes it.
	report = f.sync(t, Options{Prune: true})
	require.Equal(t, 1, report.Deleted)
	require.NoFileExists(t, filepath.Join(f.out, "style.css"))
}

func TestSyncReportsConflictsWithPages(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.src, "index.html"), "static", f.base)
	writeFile(t, filepath.Join(f.out, "index.html"), "rendered", f.base.Add(time.Hour))

	report := f.sync(t, Options{Prune: true, Reserved: sets.New("index.html")})
	require.Equal(t, 1, report.Conflicts)
	require.Equal(t, 3, report.Copied)
	require.Len(t, report.Problems, 1)
	ce, ok := errors.AsClassified(report.Problems[0])
	require.True(t, ok)
	require.Equal(t, errors.CategoryAssetCopy, ce.Category())
	asset, _ := ce.Context().GetString("asset")
	require.Equal(t, "index.html", asset)

	data, err := os.ReadFile(filepath.Join(f.out, "index.html"))
	require.NoError(t, err)
	require.Equal(t, "rendered", string(data))
}

func TestChecksumModeIgnoresTouch(t *testing.T) {
	f := newFixture(t)
	f.sync(t, Options{Compare: config.AssetCompareChecksum})

	later := f.base.Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.src, "style.css"), later, later))

	checksum := f.sync(t, Options{Compare: config.AssetCompareChecksum})
	require.Equal(t, 0, checksum.Copied)

	mtime := f.sync(t, Options{Compare: config.AssetCompareMTime})
	require.Equal(t, 1, mtime.Copied)
}

func TestSyncPreservesMode(t *testing.T) {
	f := newFixture(t)
	script := filepath.Join(f.src, "bin", "run.sh")
	writeFile(t, script, "#!/bin/sh", f.base)
	require.NoError(t, os.Chmod(script, 0o755))

	f.sync(t, Options{})
	info, err := os.Stat(filepath.Join(f.out, "bin", "run.sh"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestPlanDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	plan, err := New(Options{Source: f.src, Output: f.out, Prune: true}).Plan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, plan.Count(ActionCopy))
	require.NoDirExists(t, f.out)
}

func TestSyncMissingSourceRoot(t *testing.T) {
	out := t.TempDir()
	report, err := New(Options{Source: filepath.Join(out, "absent"), Output: out}).Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Copied)
	require.FileExists(t, filepath.Join(out, ManifestName))
}

func TestCorruptManifestDisablesPruning(t *testing.T) {
	f := newFixture(t)
	f.sync(t, Options{Prune: true})
	require.NoError(t, os.WriteFile(filepath.Join(f.out, ManifestName), []byte("{not json"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(f.src, "style.css")))

	report := f.sync(t, Options{Prune: true})
	require.Equal(t, 0, report.Deleted)
	require.FileExists(t, filepath.Join(f.out, "style.css"))
}

func TestPruneIgnoresManifestEntriesOutsideOutput(t *testing.T) {
	f := newFixture(t)
	f.sync(t, Options{Prune: true})

	victim := filepath.Join(filepath.Dir(f.out), "victim.txt")
	writeFile(t, victim, "keep me", f.base)
	abs := filepath.Join(t.TempDir(), "abs.txt")
	writeFile(t, abs, "keep me too", f.base)

	manifest := LoadManifest(f.out)
	for _, rel := range []string{"../victim.txt", "js/../../victim.txt", filepath.ToSlash(abs), "./style.css", ManifestName} {
		manifest.Files[rel] = Signature{Size: 7}
	}
	require.NoError(t, manifest.Save(f.out))

	loaded := LoadManifest(f.out)
	require.Len(t, loaded.Files, 3)
	require.Contains(t, loaded.Files, "style.css")

	report := f.sync(t, Options{Prune: true})
	require.Empty(t, report.Problems)
	require.Equal(t, 0, report.Deleted)
	require.FileExists(t, victim)
	require.FileExists(t, abs)
	require.FileExists(t, filepath.Join(f.out, ManifestName))
}

func TestValidManifestPath(t *testing.T) {
	for rel, want := range map[string]bool{
		"style.css":           true,
		"js/deep/app.js":      true,
		"":                    false,
		"../x":                false,
		"a/../../x":           false,
		"a/./b":               false,
		"/etc/passwd":         false,
		`a\..\x`:              false,
		ManifestName:          false,
		"sub/" + ManifestName: true,
	} {
		require.Equal(t, want, validManifestPath(rel), rel)
	}
}

func TestSourceNamedLikeManifestIsAConflict(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.src, ManifestName), `{"user":"data"}`, f.base)

	first := f.sync(t, Options{Prune: true})
	require.Equal(t, 3, first.Copied)
	require.Equal(t, 1, first.Conflicts)
	require.Len(t, first.Problems, 1)
	require.True(t, errors.HasCategory(first.Problems[0], errors.CategoryAssetCopy))
	require.Len(t, LoadManifest(f.out).Files, 3)

	second := f.sync(t, Options{Prune: true})
	require.Equal(t, 0, second.Copied)
	require.Equal(t, 3, second.Skipped)
	require.Equal(t, 1, second.Conflicts)
}

func TestFailedCopyDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	// A regular file where the img directory belongs makes creating img/ fail.
	writeFile(t, filepath.Join(f.out, "img"), "in the way", f.base)

	report := f.sync(t, Options{Prune: true})
	require.Equal(t, 2, report.Copied)
	require.Len(t, report.Problems, 1)
	ce, ok := errors.AsClassified(report.Problems[0])
	require.True(t, ok)
	require.Equal(t, errors.CategoryAssetCopy, ce.Category())
	asset, _ := ce.Context().GetString("asset")
	require.Equal(t, "img/logo.svg", asset)

	require.FileExists(t, filepath.Join(f.out, "style.css"))
	require.FileExists(t, filepath.Join(f.out, "js", "deep", "app.js"))
	require.NotContains(t, LoadManifest(f.out).Files, "img/logo.svg")

	require.NoError(t, os.Remove(filepath.Join(f.out, "img")))
	retry := f.sync(t, Options{Prune: true})
	require.Empty(t, retry.Problems)
	require.Equal(t, 1, retry.Copied)
}

func TestScanSorted(t *testing.T) {
	f := newFixture(t)
	entries, err := Scan(f.src)
	require.NoError(t, err)

	var rels []string
	for _, e := range entries {
		rels = append(rels, e.Rel)
	}
	require.Equal(t, []string{"img/logo.svg", "js/deep/app.js", "style.css"}, rels)
}

func TestRemoveEmptyParentsStopsAtRoot(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	writeFile(t, filepath.Join(root, "a", "keep.txt"), "x", time.Now())

	removeEmptyParents(deep, root)
	require.NoDirExists(t, filepath.Join(root, "a", "b"))
	require.DirExists(t, filepath.Join(root, "a"))
	require.DirExists(t, root)
}

func TestSignatureEqual(t *testing.T) {
	a := Signature{Size: 3, ModTime: 10}
	require.True(t, a.Equal(Signature{Size: 3, ModTime: 10}))
	require.False(t, a.Equal(Signature{Size: 4, ModTime: 10}))
	require.False(t, a.Equal(Signature{Size: 3, ModTime: 11}))
	require.True(t, Signature{Size: 3, ModTime: 1, SHA256: "ab"}.Equal(Signature{Size: 3, ModTime: 2, SHA256: "ab"}))
}
