// Package actor owns the minimal mailbox runtime dispatchers run on.
//
// A System spawns named receivers, each served by one goroutine draining an
// unbounded FIFO mailbox. Tell is fire-and-forget, Ask blocks for a reply
// under a timeout. The Monitor watches delivery activity across the whole
// system so a caller can detect the negotiation going quiet.
//
// Mailboxes are unbounded on purpose: dispatchers tell each other from inside
// their own receive loops, and a bounded queue could wedge two actors sending
// into each other's full mailboxes.
package actor
