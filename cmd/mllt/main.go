package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/mllt/cmd/mllt/commands"
	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
	"git.home.luguber.info/inful/mllt/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("mllt"),
		kong.Description("Render a tree of Handlebars templates into a static HTML site."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	if err := parser.Run(&commands.Global{Logger: slog.Default()}, cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
