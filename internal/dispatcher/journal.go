package dispatcher

import (
	"sync"
	"time"
)

const (
	EventRecv      = "recv"
	EventReply     = "reply"
	EventTell      = "tell"
	EventAsk       = "ask"
	EventAskResult = "ask.result"
)

// DefaultJournalSize bounds how many events a node keeps.
const DefaultJournalSize = 256

// Event is one journaled step of a node's negotiation.
type Event struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	Note string    `json:"note"`
}

// Journal is a bounded in-memory event log.
type Journal struct {
	mu   sync.Mutex
	next uint64
	max  int
	ring []Event
}

func NewJournal(max int) *Journal {
	if max <= 0 {
		max = DefaultJournalSize
	}
	return &Journal{max: max}
}

// Record appends one event, evicting the oldest past the size bound.
func (j *Journal) Record(kind, note string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.next++
	ev := Event{Seq: j.next, Time: time.Now(), Kind: kind, Note: note}
	if len(j.ring) == j.max {
		copy(j.ring, j.ring[1:])
		j.ring[len(j.ring)-1] = ev
		return
	}
	j.ring = append(j.ring, ev)
}

// Tail returns up to n most recent events, oldest first.
func (j *Journal) Tail(n int) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n > len(j.ring) {
		n = len(j.ring)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	copy(out, j.ring[len(j.ring)-n:])
	return out
}

// Recorded reports how many events were ever recorded.
func (j *Journal) Recorded() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}
