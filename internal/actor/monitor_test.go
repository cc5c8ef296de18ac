package actor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitQuietReturnsWhenIdle(t *testing.T) {
	m := NewMonitor()
	m.Bump()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WaitQuiet(ctx, 30*time.Millisecond); err != nil {
		t.Fatalf("wait quiet failed: %v", err)
	}
}

func TestWaitQuietExtendsOnActivity(t *testing.T) {
	m := NewMonitor()

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Bump()
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := m.WaitQuiet(ctx, 60*time.Millisecond)
	close(stop)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("steady activity should keep the wait alive, got %v", err)
	}
}

func TestWaitQuietHonorsContext(t *testing.T) {
	m := NewMonitor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.WaitQuiet(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
}
