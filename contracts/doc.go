// Package contracts defines the data that crosses the transport boundary.
//
// It holds the request/response Envelope wire format, the payload decoding
// rules applied to every inbound delivery, delivery Metadata and the options a
// publisher can attach to an outbound message.
//
// Decoding never fails: a payload that is not valid JSON is kept as text and
// flagged Invalid so routing is never interrupted by malformed input.
package contracts
