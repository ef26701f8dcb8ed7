package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/mllt/internal/config"
	"git.home.luguber.info/inful/mllt/internal/scaffold"
)

// NewCmd implements the 'new' command.
type NewCmd struct {
	Path  string `arg:"" type:"path" help:"Directory to create the site in"`
	Force bool   `help:"Overwrite existing files"`
}

func (n *NewCmd) Run(_ *Global, _ *CLI) error {
	report, err := scaffold.Instantiate(n.Path, n.Force)
	if err != nil {
		return err
	}
	fmt.Printf("Created site in %s (%d files written, %d overwritten)\n",
		n.Path, len(report.Created), len(report.Overwritten))
	fmt.Printf("Run `mllt build -c %s` to render it.\n", filepath.Join(n.Path, config.DefaultFile))
	return nil
}
