// Package protocol owns the wire contract between a donuts host and its clients.
//
// Ownership boundary:
// - envelope variants and their JSON shape
// - field guards narrowing decoded values into envelopes
// - error envelope synthesis
//
// Framing lives in protocol/frame; argument shapes live in protocol/schema.
package protocol
