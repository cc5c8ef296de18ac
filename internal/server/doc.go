// Package server owns the solver daemon: a framed TCP listener that
// accepts study submissions and a worker pool that runs them. A
// separate HTTP listener serves the admin surface.
//
// Ownership boundaries:
//   - server owns connection handling, job claiming, and admin routes
//   - jobstore owns job persistence and status transitions
//   - simulation owns study execution
//   - wire/session owns the frame codecs and the handshake
//
// The solver listener speaks the framed protocol only after a hello
// line carrying a valid token; the admin listener is plain HTTP and
// stays read-only.
package server
