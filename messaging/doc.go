// Package messaging implements the consumer-side reliability core: it turns
// a raw broker subscription into a durable, observable, at-least-once
// message-handling pipeline.
//
// The pieces, leaf first:
//   - Conventions and ConventionsResolver derive the (exchange, queue,
//     routingKey) triple from a message type
//   - SubscriptionRegistry prevents duplicate consumers per triple
//   - TopologyProvisioner declares the queue, bindings, dead-letter pair
//     and QoS for a subscription
//   - CorrelationContextBuilder extracts the per-delivery envelope and
//     correlation context
//   - MessageProcessor drives one in-flight message through retry, timeout
//     and rejection handling to a terminal ack or nack
//   - Subscriber wires it all together per subscription and exposes the
//     generic Subscribe function
//
// Errors fall into two classes. Anything failing before the processor runs
// (deserialization, context building, a plugin fault) is fatal for the
// delivery: it is rejected without requeue and the error surfaces to the
// transport. Handler failures inside the processor are recoverable: they are
// retried on a fixed interval up to the configured budget, optionally mapped
// to an outward rejected event, and always end in exactly one acknowledgment
// decision.
package messaging
