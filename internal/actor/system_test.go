package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type echoReceiver struct{}

func (echoReceiver) Receive(msg any) (any, error) {
	return msg, nil
}

type recordReceiver struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recordReceiver) Receive(msg any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return len(r.msgs), nil
}

func (r *recordReceiver) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.msgs))
	copy(out, r.msgs)
	return out
}

type sleepReceiver struct{ d time.Duration }

func (s sleepReceiver) Receive(msg any) (any, error) {
	time.Sleep(s.d)
	return msg, nil
}

func TestAskRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys := NewSystem(time.Second)
	ref, err := sys.Spawn(ctx, "echo", echoReceiver{})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	got, err := ref.Ask(ctx, "ping")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if got != "ping" {
		t.Fatalf("unexpected reply: %v", got)
	}
}

func TestTellPreservesOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys := NewSystem(time.Second)
	rec := &recordReceiver{}
	ref, err := sys.Spawn(ctx, "rec", rec)
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		ref.Tell(i)
	}
	// Ask after the tells acts as a barrier: the mailbox is FIFO.
	if _, err := ref.Ask(ctx, "done"); err != nil {
		t.Fatalf("barrier ask failed: %v", err)
	}

	msgs := rec.snapshot()
	if len(msgs) != 51 {
		t.Fatalf("expected 51 deliveries, got %d", len(msgs))
	}
	for i := 0; i < 50; i++ {
		if msgs[i] != i {
			t.Fatalf("out of order at %d: %v", i, msgs[i])
		}
	}
}

func TestSpawnDuplicateName(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys := NewSystem(time.Second)
	if _, err := sys.Spawn(ctx, "a", echoReceiver{}); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if _, err := sys.Spawn(ctx, "a", echoReceiver{}); !errors.Is(err, ErrDuplicateActor) {
		t.Fatalf("expected ErrDuplicateActor, got %v", err)
	}
}

func TestSystemTellAskUnknownName(t *testing.T) {
	sys := NewSystem(time.Second)
	if err := sys.Tell("ghost", 1); !errors.Is(err, ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor, got %v", err)
	}
	if _, err := sys.Ask(context.Background(), "ghost", 1); !errors.Is(err, ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor, got %v", err)
	}
}

func TestAskTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys := NewSystem(20 * time.Millisecond)
	ref, err := sys.Spawn(ctx, "slow", sleepReceiver{d: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	_, err = ref.Ask(ctx, "ping")
	if !errors.Is(err, ErrAskTimeout) {
		t.Fatalf("expected ErrAskTimeout, got %v", err)
	}
}

func TestAskHonorsContext(t *testing.T) {
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()

	sys := NewSystem(time.Minute)
	ref, err := sys.Spawn(loopCtx, "slow", sleepReceiver{d: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	askCtx, cancelAsk := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelAsk()
	_, err = ref.Ask(askCtx, "ping")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestWaitJoinsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sys := NewSystem(time.Second)
	if _, err := sys.Spawn(ctx, "a", echoReceiver{}); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if _, err := sys.Spawn(ctx, "b", echoReceiver{}); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	cancel()
	done := make(chan struct{})
	go func() {
		sys.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("system did not drain after cancel")
	}
}

func TestNamesAndLookup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys := NewSystem(time.Second)
	if _, err := sys.Spawn(ctx, "a", echoReceiver{}); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if _, ok := sys.Lookup("a"); !ok {
		t.Fatalf("lookup should find spawned actor")
	}
	if _, ok := sys.Lookup("b"); ok {
		t.Fatalf("lookup should miss unknown actor")
	}
	if names := sys.Names(); len(names) != 1 || names[0] != "a" {
		t.Fatalf("unexpected names: %v", names)
	}
}
