/*
Package metrics defines the reconciliation core's internal Prometheus
instrumentation: reconciliation tick duration and outcome, driver operation
duration and errors, pool-supervisor retry counts, and fatal-threshold and
reconnect counters.

The core does not expose these over HTTP itself — no /metrics endpoint, no
promhttp.Handler — since an HTTP status surface is out of scope (§1). An
external status process registers Registry, or the collectors it holds,
against its own exposition path.
*/
package metrics
