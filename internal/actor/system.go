package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrDuplicateActor = errors.New("actor: name already spawned")
	ErrUnknownActor   = errors.New("actor: unknown name")
	ErrAskTimeout     = errors.New("actor: ask timed out")
)

// DefaultAskTimeout bounds how long an Ask waits for the target's reply.
const DefaultAskTimeout = 5 * time.Second

// Receiver handles one message at a time from its mailbox.
//
// The returned value is delivered to an asker if one is waiting; tells
// discard it.
type Receiver interface {
	Receive(msg any) (any, error)
}

// Ref addresses one spawned actor.
type Ref struct {
	name       string
	box        *mailbox
	monitor    *Monitor
	askTimeout time.Duration
}

func (r *Ref) Name() string {
	return r.name
}

// Tell queues msg without waiting for it to be processed.
func (r *Ref) Tell(msg any) {
	r.monitor.Bump()
	r.box.Push(envelope{msg: msg})
}

// Ask queues msg and blocks for the receiver's reply.
func (r *Ref) Ask(ctx context.Context, msg any) (any, error) {
	reply := make(chan askResult, 1)
	r.monitor.Bump()
	r.box.Push(envelope{msg: msg, reply: reply})

	timer := time.NewTimer(r.askTimeout)
	defer timer.Stop()
	select {
	case res := <-reply:
		return res.value, res.err
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrAskTimeout, r.name, r.askTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending counts queued envelopes not yet delivered.
func (r *Ref) Pending() int {
	return r.box.Len()
}

// System spawns and addresses actors by name.
type System struct {
	askTimeout time.Duration
	monitor    *Monitor

	mu   sync.RWMutex
	refs map[string]*Ref
	wg   sync.WaitGroup
}

func NewSystem(askTimeout time.Duration) *System {
	if askTimeout <= 0 {
		askTimeout = DefaultAskTimeout
	}
	return &System{
		askTimeout: askTimeout,
		monitor:    NewMonitor(),
		refs:       make(map[string]*Ref),
	}
}

func (s *System) Monitor() *Monitor {
	return s.monitor
}

// Spawn registers rcv under name and starts its receive loop. The loop runs
// until ctx is canceled.
func (s *System) Spawn(ctx context.Context, name string, rcv Receiver) (*Ref, error) {
	ref := &Ref{
		name:       name,
		box:        newMailbox(),
		monitor:    s.monitor,
		askTimeout: s.askTimeout,
	}

	s.mu.Lock()
	if _, exists := s.refs[name]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateActor, name)
	}
	s.refs[name] = ref
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, ref, rcv)
	return ref, nil
}

func (s *System) run(ctx context.Context, ref *Ref, rcv Receiver) {
	defer s.wg.Done()
	for {
		env, ok := ref.box.Pop(ctx)
		if !ok {
			return
		}
		s.monitor.Bump()
		value, err := rcv.Receive(env.msg)
		if env.reply != nil {
			env.reply <- askResult{value: value, err: err}
		}
	}
}

// Lookup resolves a spawned actor by name.
func (s *System) Lookup(name string) (*Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.refs[name]
	return ref, ok
}

// Tell queues msg for the named actor.
func (s *System) Tell(to string, msg any) error {
	ref, ok := s.Lookup(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActor, to)
	}
	ref.Tell(msg)
	return nil
}

// Ask queues msg for the named actor and blocks for its reply.
func (s *System) Ask(ctx context.Context, to string, msg any) (any, error) {
	ref, ok := s.Lookup(to)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, to)
	}
	return ref.Ask(ctx, msg)
}

// Names lists spawned actors in registration-independent order.
func (s *System) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.refs))
	for name := range s.refs {
		out = append(out, name)
	}
	return out
}

// Wait blocks until every spawned loop has exited.
func (s *System) Wait() {
	s.wg.Wait()
}
