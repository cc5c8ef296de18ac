// Package ledger owns the bookkeeping a dispatcher keeps next to its
// optimization state.
//
// ExchangeLedger records granted lots so a producer never sells the same
// capacity twice. LinkLedger records reservations against outgoing link
// capacity so forwarded offers and grants never oversubscribe a line. Both are
// safe for concurrent readers; writers are expected to be the owning
// dispatcher only.
package ledger
