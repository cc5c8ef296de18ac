package actor

import (
	"context"
	"sync/atomic"
	"time"
)

// Monitor counts message activity across a system.
//
// Every push and every delivery bumps the counter, so an unchanged counter
// means no actor sent or processed anything in the sampled window.
type Monitor struct {
	activity atomic.Uint64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) Bump() {
	m.activity.Add(1)
}

func (m *Monitor) Activity() uint64 {
	return m.activity.Load()
}

// WaitQuiet blocks until the counter holds still for quietFor, or ctx ends.
func (m *Monitor) WaitQuiet(ctx context.Context, quietFor time.Duration) error {
	poll := quietFor / 4
	if poll < time.Millisecond {
		poll = time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	last := m.activity.Load()
	deadline := time.Now().Add(quietFor)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur := m.activity.Load()
			if cur != last {
				last = cur
				deadline = time.Now().Add(quietFor)
				continue
			}
			if !time.Now().Before(deadline) {
				return nil
			}
		}
	}
}
