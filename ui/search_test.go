package ui

import (
	"context"
	"testing"
	"time"
)

func TestSearchFilterDebounces(t *testing.T) {
	s := NewSearchFilter(context.Background())
	fired := make(chan struct{}, 4)
	for _, q := range []string{"p", "pa", "par", "part"} {
		s.SetQuery(q, func() { fired <- struct{}{} })
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced callback never fired")
	}
	if got := s.ActiveQuery(); got != "part" {
		t.Fatalf("ActiveQuery = %q, want the final input", got)
	}
	select {
	case <-fired:
		t.Fatal("intermediate keystrokes fired their own callbacks")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestSearchFilterNormalizes(t *testing.T) {
	s := NewSearchFilter(context.Background())
	done := make(chan struct{})
	s.SetQuery("  PART  ", func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
	if s.ActiveQuery() != "part" {
		t.Fatalf("ActiveQuery = %q", s.ActiveQuery())
	}
}

func TestSearchFilterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSearchFilter(ctx)
	s.SetQuery("x", func() { t.Error("callback fired after cancel") })
	time.Sleep(400 * time.Millisecond)
}

func TestNilSearchFilterSafe(t *testing.T) {
	var s *SearchFilter
	s.SetQuery("x", nil)
	if s.ActiveQuery() != "" {
		t.Fatal("nil filter returned a query")
	}
}

func TestSearchFilterStopCancelsPending(t *testing.T) {
	s := NewSearchFilter(context.Background())
	s.SetQuery("x", func() { t.Error("callback fired after Stop") })
	s.Stop()
	time.Sleep(400 * time.Millisecond)
}
