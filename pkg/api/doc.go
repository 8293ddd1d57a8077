// Package api serves the analytics ops HTTP surface: health checks,
// Prometheus metrics, the dashboard bundle, scheduler control and per-user
// snapshot recompute.
package api
