// Package adequacy owns the merit-order optimization a dispatcher runs over
// its local view of the network.
//
// Optimize is a pure function: it takes consumption blocks and production
// blocks, allocates supply to demand by cost, and returns a NodeState pricing
// the allocation. Dispatchers call it on every state change, including trial
// runs against proposals that may be discarded.
package adequacy
