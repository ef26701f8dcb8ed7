package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	sitetest "git.home.luguber.info/inful/mllt/internal/testing"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("mllt"),
		kong.Vars{"version": "test"},
		kong.Exit(func(code int) { t.Fatalf("unexpected exit %d", code) }),
	)
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, kctx
}

func exitCode(err error) int {
	return errors.NewCLIErrorAdapter(false, slog.Default()).ExitCodeFor(err)
}

func TestBuildFlagsOnlySetWhatWasGiven(t *testing.T) {
	cli, _ := parse(t, "build", "-o", "out", "--strict", "--workers", "3")

	o := cli.Build.overrides()
	require.NotNil(t, o.Output)
	require.Equal(t, "out", *o.Output)
	require.NotNil(t, o.Strict)
	require.True(t, *o.Strict)
	require.NotNil(t, o.Workers)
	require.Equal(t, 3, *o.Workers)
	require.Nil(t, o.Content)
	require.Nil(t, o.Theme)
	require.Nil(t, o.Assets)
	require.Nil(t, o.BaseURL)
}

func TestStrictCanBeDisabledExplicitly(t *testing.T) {
	cli, _ := parse(t, "build", "--strict=false")
	require.NotNil(t, cli.Build.Strict)
	require.False(t, *cli.Build.Strict)
}

func TestServeDefaults(t *testing.T) {
	cli, _ := parse(t, "serve")
	require.Equal(t, 1313, cli.Serve.Port)
	require.Equal(t, "localhost", cli.Serve.Host)
	require.Equal(t, config.DefaultFile, filepath.Base(cli.Serve.Config))
}

func TestNewThenBuild(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")

	cli, kctx := parse(t, "new", dir)
	require.NoError(t, kctx.Run(&Global{}, cli))
	require.FileExists(t, filepath.Join(dir, config.DefaultFile))

	cli, kctx = parse(t, "build", "-c", filepath.Join(dir, config.DefaultFile), "--base-url", "https://example.org/")
	require.NoError(t, kctx.Run(&Global{}, cli))

	data, err := os.ReadFile(filepath.Join(dir, "output", "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(data), `<a href="https://example.org/">`)
}

func TestNewRefusesNonEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), nil, 0o644))

	cli, kctx := parse(t, "new", dir)
	err := kctx.Run(&Global{}, cli)
	require.Error(t, err)
	require.Equal(t, 2, exitCode(err))

	cli, kctx = parse(t, "new", dir, "--force")
	require.NoError(t, kctx.Run(&Global{}, cli))
}

func TestBuildMissingConfig(t *testing.T) {
	cli, kctx := parse(t, "build", "-c", filepath.Join(t.TempDir(), "absent.toml"))
	err := kctx.Run(&Global{}, cli)
	require.Error(t, err)
	require.Equal(t, 7, exitCode(err))
}

func TestBuildWithFailingPageExitsNonZero(t *testing.T) {
	site := sitetest.NewSite(t).
		Config("[site]\nstrict = true\n").
		Page("ok", "<p>{{page}}</p>").
		Page("bad", "<p>{{params.missing}}</p>")

	cli, kctx := parse(t, "build", "-c", site.ConfigPath())
	err := kctx.Run(&Global{}, cli)
	require.Error(t, err)
	require.Equal(t, 11, exitCode(err))
	sitetest.NewFileAssertions(t, site.Path("html")).
		AssertFileEquals("ok.html", "<p>ok</p>").
		AssertFileNotExists("bad.html")
}

func TestParseLogLevel(t *testing.T) {
	t.Setenv(LogLevelEnv, " WARNING ")
	require.Equal(t, slog.LevelWarn, parseLogLevel(false, false))
	require.Equal(t, slog.LevelDebug, parseLogLevel(true, true))
	require.Equal(t, slog.LevelError, parseLogLevel(false, true))

	t.Setenv(LogLevelEnv, "nonsense")
	require.Equal(t, slog.LevelInfo, parseLogLevel(false, false))
}
