package typing

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingSender struct {
	mu    sync.Mutex
	calls []int64
}

func (s *countingSender) SendTyping(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, chatID)
	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestIndicator_SendsImmediately(t *testing.T) {
	s := &countingSender{}
	ind := New(s, Options{Interval: time.Hour})
	ind.Start(context.Background(), 55)
	defer ind.Stop()

	if got := s.count(); got != 1 {
		t.Errorf("calls after Start = %d, want 1", got)
	}
}

func TestIndicator_RepeatsUntilStopped(t *testing.T) {
	s := &countingSender{}
	ind := New(s, Options{Interval: 5 * time.Millisecond})
	ind.Start(context.Background(), 55)

	deadline := time.Now().Add(2 * time.Second)
	for s.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ind.Stop()
	if s.count() < 3 {
		t.Fatalf("expected keepalive repeats, got %d calls", s.count())
	}

	after := s.count()
	time.Sleep(20 * time.Millisecond)
	if s.count() != after {
		t.Errorf("typing sent after Stop: %d -> %d", after, s.count())
	}
}

func TestIndicator_StopIsIdempotent(t *testing.T) {
	s := &countingSender{}
	ind := New(s, Options{})
	ind.Stop() // never started

	ind.Start(context.Background(), 1)
	ind.Stop()
	ind.Stop()
	if s.count() != 1 {
		t.Errorf("calls = %d, want 1", s.count())
	}
}

func TestIndicator_MaxDuration(t *testing.T) {
	s := &countingSender{}
	ind := New(s, Options{Interval: time.Millisecond, MaxDuration: 10 * time.Millisecond})
	ind.Start(context.Background(), 1)

	select {
	case <-ind.done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after MaxDuration")
	}
	ind.Stop()
}
