// Package domain owns the network value types and dispatcher message shapes.
//
// Ownership boundary:
// - consumption/production/link value types
//
// - exchange identity and routing paths
//
// - dispatcher message envelopes and their validation
//
// Path convention: a message path always lists the next hop first, from the
// perspective of the node currently holding the message. Proposals and
// consumer-held exchanges route toward the producer; return paths route back
// toward the consumer.
package domain
