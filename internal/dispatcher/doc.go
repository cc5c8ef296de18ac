// Package dispatcher owns the per-node actor and its negotiation broker.
//
// A Dispatcher is the receive loop: it journals traffic, hands each message to
// the broker, and answers snapshot and totals requests. The Broker holds the
// node's consumptions, productions, links, ledgers, and the current
// optimization state, and runs the capacity negotiation:
//
//   - free capacity is proposed to neighbors, link cost added per hop;
//   - a node improving its cost with a proposal asks the producer for
//     exchanges, rebinding granted lots into its production stack;
//   - proposals that do not help are forwarded outward;
//   - displaced lots are canceled back along their path, freeing ledger
//     entries and link reservations at every hop.
//
// Link capacity is committed hop by hop in the power-flow direction when
// grants travel back to the consumer, and released the same way by cancels.
package dispatcher
