// Package sinks implements progress consumers: structured logging,
// Prometheus collectors, and job completion notifications.
package sinks
