/*
Package metrics defines Dockhand's Prometheus collectors.

All collectors are package-level and registered in init; the gateway
serves them at GET /metrics. The set focuses on the routing engine:
session and presence counts, commands routed or shed, outstanding
correlations, and API latency.
*/
package metrics
