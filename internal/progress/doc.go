// Package progress carries job lifecycle events from the orchestrator to
// pluggable sinks. The Hub buffers events on a background goroutine, flushes
// them in batches, and never blocks the emitting job.
package progress
