package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/gridmesh/internal/domain"
)

var (
	ErrUnknownLink    = errors.New("ledger: unknown link")
	ErrLinkOverCommit = errors.New("ledger: link capacity exceeded")
)

// LinkUsage is a read-only view of one link's commitment.
type LinkUsage struct {
	Dest     string `json:"dest"`
	Capacity int64  `json:"capacity"`
	Used     int64  `json:"used"`
	Cost     int64  `json:"cost"`
}

// LinkLedger tracks reservations against a node's outgoing link capacity.
type LinkLedger struct {
	mu       sync.RWMutex
	links    map[string]domain.Link
	reserved map[string]int64
}

func NewLinkLedger(links []domain.Link) *LinkLedger {
	l := &LinkLedger{
		links:    make(map[string]domain.Link, len(links)),
		reserved: make(map[string]int64, len(links)),
	}
	for _, link := range links {
		l.links[link.Dest] = link
	}
	return l
}

// Available reports the unreserved capacity toward dest. Unknown destinations
// have no capacity.
func (l *LinkLedger) Available(dest string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	link, ok := l.links[dest]
	if !ok {
		return 0
	}
	return link.Capacity - l.reserved[dest]
}

// Reserve commits quantity on the link toward dest.
func (l *LinkLedger) Reserve(dest string, quantity int64) error {
	if quantity <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	link, ok := l.links[dest]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLink, dest)
	}
	if l.reserved[dest]+quantity > link.Capacity {
		return fmt.Errorf("%w: %s needs %d, has %d", ErrLinkOverCommit, dest, quantity, link.Capacity-l.reserved[dest])
	}
	l.reserved[dest] += quantity
	return nil
}

// Release frees quantity on the link toward dest. Releasing more than was
// reserved clamps at zero; unknown destinations are ignored.
func (l *LinkLedger) Release(dest string, quantity int64) {
	if quantity <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.links[dest]; !ok {
		return
	}
	l.reserved[dest] -= quantity
	if l.reserved[dest] < 0 {
		l.reserved[dest] = 0
	}
}

// Used reports the reserved quantity toward dest.
func (l *LinkLedger) Used(dest string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reserved[dest]
}

// Usage returns every link's commitment, ordered by destination.
func (l *LinkLedger) Usage() []LinkUsage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LinkUsage, 0, len(l.links))
	for dest, link := range l.links {
		out = append(out, LinkUsage{
			Dest:     dest,
			Capacity: link.Capacity,
			Used:     l.reserved[dest],
			Cost:     link.Cost,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dest < out[j].Dest })
	return out
}
