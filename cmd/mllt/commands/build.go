package commands

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/mllt/internal/build"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	SiteFlags
}

func (b *BuildCmd) Run(_ *Global, _ *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	settings, err := b.settings()
	if err != nil {
		return err
	}

	result, err := build.NewService().Run(ctx, build.Request{Settings: settings})
	if err != nil {
		return err
	}
	fmt.Println(summary(result))
	return result.Err()
}

// summary is the one-line report printed after a build.
func summary(r *build.Result) string {
	line := fmt.Sprintf("%s: %d pages (%d written, %d failed)",
		r.Status, r.Pages, r.PagesWritten, r.PagesFailed)
	if a := r.Assets; a != nil {
		line += fmt.Sprintf(", assets %d copied (%s), %d skipped, %d deleted",
			a.Copied, humanize.Bytes(uint64(a.Bytes)), a.Skipped, a.Deleted)
		if a.Conflicts > 0 {
			line += fmt.Sprintf(", %d conflicts", a.Conflicts)
		}
	}
	return fmt.Sprintf("%s in %s -> %s", line, r.Duration.Round(time.Millisecond), r.OutputPath)
}
