// Package client dials solver daemons and drives the framed job
// protocol from submission to settled result.
//
// Ownership boundaries:
//   - client owns dialing, the hello handshake, and request/reply pairing
//   - wire/session owns the frame codecs and the handshake envelopes
//   - server owns what happens to a submission after the ack
//
// Sessions serialize requests on one connection. Daemon-side failures
// surface as session.WireError values callers can match by code.
package client
