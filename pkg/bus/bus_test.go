package bus

import (
	"testing"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := New[int](4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	if err := b.Publish(7); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := <-s1.C; got != 7 {
		t.Errorf("s1 received %d, want 7", got)
	}
	if got := <-s2.C; got != 7 {
		t.Errorf("s2 received %d, want 7", got)
	}
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := New[int](2)
	s := b.Subscribe()

	for i := 0; i < 5; i++ {
		if err := b.Publish(i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	if got := s.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}

	// The buffered messages are the first two published.
	if got := <-s.C; got != 0 {
		t.Errorf("first buffered message = %d, want 0", got)
	}
	if got := <-s.C; got != 1 {
		t.Errorf("second buffered message = %d, want 1", got)
	}
}

func TestBroadcasterPublishAfterClose(t *testing.T) {
	b := New[string](1)
	s := b.Subscribe()
	b.Close()

	if err := b.Publish("x"); err != ErrClosed {
		t.Errorf("publish after close: got %v, want ErrClosed", err)
	}
	if _, ok := <-s.C; ok {
		t.Error("subscriber channel should be closed")
	}
}

func TestSubscriptionCancel(t *testing.T) {
	b := New[int](1)
	s := b.Subscribe()

	s.Cancel()
	s.Cancel() // second cancel must not panic

	if got := b.Subscribers(); got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}
	if err := b.Publish(1); err != nil {
		t.Errorf("publish to empty broadcaster: %v", err)
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	b := New[int](1)
	b.Close()

	s := b.Subscribe()
	if _, ok := <-s.C; ok {
		t.Error("late subscription should be closed immediately")
	}
	s.Cancel() // must not panic
}
