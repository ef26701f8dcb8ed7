package commands

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/mllt/internal/build"
	"git.home.luguber.info/inful/mllt/internal/metrics"
	"git.home.luguber.info/inful/mllt/internal/preview"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	SiteFlags
	Host string `name:"host" default:"localhost" help:"Interface to listen on"`
	Port int    `short:"p" name:"port" default:"1313" help:"Port to listen on"`
}

func (s *ServeCmd) Run(_ *Global, _ *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := build.NewService().WithRecorder(metrics.NewPrometheusRecorder(reg))

	return preview.Run(ctx, preview.Options{
		Host:     s.Host,
		Port:     s.Port,
		Resolve:  s.settings,
		Service:  svc,
		Registry: reg,
	})
}
