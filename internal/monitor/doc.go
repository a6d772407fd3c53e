// Package monitor samples host and service health on fixed intervals.
//
// Each probe produces a (value, level) reading that lands in the
// health_samples table. Readings above their thresholds raise alerts,
// deduplicated per (probe, level) over a recent sequence window so a
// flapping probe does not spam channels, and routed through the
// notification dispatcher.
//
// The package also backs two engine integrations: HostSampler feeds
// the worker pool's load-based scaling, and RegisterRunner installs
// the probe runner kind so pipelines can gate on health checks.
package monitor
