package ui

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SearchFilter debounces query updates to protect UI latency: reconciling a
// large collection on every keystroke would stall the draw loop.
type SearchFilter struct {
	mu          sync.RWMutex
	query       string
	activeQuery string
	timer       *time.Timer
	ctx         context.Context
	onChange    func()
}

const searchDebounce = 250 * time.Millisecond

func NewSearchFilter(ctx context.Context) *SearchFilter {
	return &SearchFilter{ctx: ctx}
}

// SetQuery records the pending query and (re)arms the debounce timer. The
// onChange callback fires once the input settles.
func (s *SearchFilter) SetQuery(query string, onChange func()) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.query = strings.ToLower(strings.TrimSpace(query))
	s.onChange = onChange
	if s.ctx != nil && s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(searchDebounce, s.fire)
	} else {
		s.timer.Reset(searchDebounce)
	}
	s.mu.Unlock()
}

// Stop cancels any pending debounce timer so no callback fires after the
// dashboard has torn down.
func (s *SearchFilter) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.onChange = nil
	s.mu.Unlock()
}

// ActiveQuery returns the last settled query.
func (s *SearchFilter) ActiveQuery() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeQuery
}

func (s *SearchFilter) fire() {
	s.mu.Lock()
	s.activeQuery = s.query
	onChange := s.onChange
	cancelled := s.ctx != nil && s.ctx.Err() != nil
	s.mu.Unlock()
	if onChange != nil && !cancelled {
		onChange()
	}
}
