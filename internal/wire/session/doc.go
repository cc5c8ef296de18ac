// Package session owns the client<->daemon solver transport helpers.
//
// Ownership boundary:
// - hello/hello.ack handshake control messages
// - job envelope encode/decode over frames
// - retry/backoff primitives
package session
