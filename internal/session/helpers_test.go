package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// recordSink is a Sink that records everything delivered to it.
// Safe for concurrent use so controller tests can inspect it while the
// event loop runs.
type recordSink struct {
	mu       sync.Mutex
	finals   []Utterance
	interims []*Preview
	clears   int
}

func (s *recordSink) AddFinal(u Utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, u)
}

func (s *recordSink) UpdateInterim(p *Preview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		cp := *p
		p = &cp
	}
	s.interims = append(s.interims, p)
}

func (s *recordSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *recordSink) Finals() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Utterance(nil), s.finals...)
}

func (s *recordSink) FinalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finals)
}

func (s *recordSink) InterimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.interims)
}

// LastInterim returns the most recent preview update and whether any update
// was delivered at all. The returned preview may be nil (display cleared).
func (s *recordSink) LastInterim() (*Preview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.interims) == 0 {
		return nil, false
	}
	return s.interims[len(s.interims)-1], true
}

// fakeClock is a controllable clock for reconciler tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// quietLogger discards log output so tests stay silent.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
