// Package commands implements the mllt subcommands.
package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/foundation/normalization"
)

// LogLevelEnv overrides the log level when neither -v nor -q is given.
const LogLevelEnv = "MLLT_LOG_LEVEL"

// Global is passed to every subcommand.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Verbose bool             `short:"v" help:"Enable debug logging"`
	Quiet   bool             `short:"q" help:"Only log errors"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build BuildCmd `cmd:"" help:"Render the site into the output directory"`
	Serve ServeCmd `cmd:"" help:"Build, serve the output over HTTP and rebuild on change"`
	New   NewCmd   `cmd:"" help:"Create a sample site"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(c.Verbose, c.Quiet)}))
	slog.SetDefault(logger)
	return nil
}

var logLevels = normalization.NewEnumNormalizer("log level", map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}, slog.LevelInfo)

// parseLogLevel: -v wins over -q, both win over MLLT_LOG_LEVEL.
func parseLogLevel(verbose, quiet bool) slog.Level {
	switch {
	case verbose:
		return slog.LevelDebug
	case quiet:
		return slog.LevelError
	}
	return logLevels.Normalize(os.Getenv(LogLevelEnv))
}

// SiteFlags are the options shared by build and serve. Unset pointers leave the value
// to the configuration file.
type SiteFlags struct {
	Config  string  `short:"c" name:"config" default:"mllt.toml" type:"path" help:"Configuration file"`
	Output  *string `short:"o" name:"output" help:"Output directory (site.publishdir)"`
	Content *string `name:"content" help:"Content directory (site.content)"`
	Theme   *string `name:"theme" help:"Theme directory (site.theme)"`
	Assets  *string `name:"assets" help:"Asset directory (site.assets)"`
	BaseURL *string `name:"base-url" help:"Base URL exposed as site.baseURL"`
	Strict  *bool   `name:"strict" help:"Fail pages that reference undefined variables"`
	Workers *int    `name:"workers" help:"Concurrent page renders and asset copies"`
}

func (f *SiteFlags) overrides() config.Overrides {
	return config.Overrides{
		BaseURL: f.BaseURL,
		Output:  f.Output,
		Content: f.Content,
		Theme:   f.Theme,
		Assets:  f.Assets,
		Strict:  f.Strict,
		Workers: f.Workers,
	}
}

// settings loads the configuration file and applies the command-line overrides.
func (f *SiteFlags) settings() (*config.Settings, error) {
	doc, err := config.Load(f.Config)
	if err != nil {
		return nil, err
	}
	return config.Resolve(doc, f.overrides())
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
