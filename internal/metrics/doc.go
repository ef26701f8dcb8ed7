// Package metrics records build, page and asset metrics.
//
// Components receive a Recorder and default to NoopRecorder, so metrics cost nothing
// unless a real implementation is injected:
//
//	reg := prometheus.NewRegistry()
//	svc := build.NewService().WithRecorder(metrics.NewPrometheusRecorder(reg))
//	mux.Handle("/metrics", metrics.HTTPHandler(reg))
//
// The serve command wires the Prometheus recorder; one-shot builds keep the noop.
package metrics
