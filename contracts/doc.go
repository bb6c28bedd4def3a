// Package contracts defines the message types shared by every layer of the
// library: the Message interface, base implementations with generated IDs,
// the per-delivery MessageEnvelope, the CorrelationContext threaded through
// message handling, and the RejectedEvent published when handling is given up.
package contracts
