// Package simulation owns the study model and the run engine.
//
// A Study declares every node of the network with its consumptions,
// productions, and links. The Engine spawns one dispatcher per node on an
// actor system, starts the capacity negotiation, waits for message traffic
// to go quiet, then polls every node for its settled totals.
package simulation
