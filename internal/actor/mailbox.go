package actor

import (
	"context"
	"sync"
)

type askResult struct {
	value any
	err   error
}

type envelope struct {
	msg   any
	reply chan<- askResult
}

// mailbox is an unbounded FIFO queue with a single-slot wake signal.
type mailbox struct {
	mu    sync.Mutex
	queue []envelope
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) Push(env envelope) {
	m.mu.Lock()
	m.queue = append(m.queue, env)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Pop blocks until an envelope is available or ctx is done.
func (m *mailbox) Pop(ctx context.Context) (envelope, bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			env := m.queue[0]
			m.queue[0] = envelope{}
			m.queue = m.queue[1:]
			if len(m.queue) == 0 {
				m.queue = nil
			}
			m.mu.Unlock()
			return env, true
		}
		m.mu.Unlock()

		select {
		case <-m.wake:
		case <-ctx.Done():
			return envelope{}, false
		}
	}
}

func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
