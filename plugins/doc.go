// Package plugins provides the middleware chain that wraps message handling.
//
// A Plugin receives the message envelope, the deserialized message and a Next
// continuation; it may short-circuit by not calling next, wrap the call with
// cross-cutting behavior, or return an error to abort the delivery. The chain
// is composed once per subscription and its terminal stage is the message
// processor's retry state machine.
//
// Built-in plugins:
//   - LoggingPlugin: logs each delivery with timing information
//   - MetricsPlugin: Prometheus counters and latency histogram
package plugins
