// Package prometheus exposes deviceauth engine metrics as a
// client_golang [prometheus.Collector].
//
// The collector reads an engine snapshot on every scrape, so it holds no
// state of its own. Register it with any registry:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(export.NewCollector(engine))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Latency histograms carry no sum because the engine does not record one;
// the _sum series is always zero.
package prometheus
