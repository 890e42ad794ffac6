package snapshot

import (
	"sync"
	"time"
)

// Settle delays before a capture fires. The graph must stop changing for
// the full settle window before a frame is taken, so the capture never sees
// a half-applied layout. The initial delay after hydration is longer to
// outlast the editor's fit-view animation.
const (
	DefaultSettle        = 1 * time.Second
	DefaultInitialSettle = 2500 * time.Millisecond
)

// Scheduler arms a restartable settle timer in front of a capture callback.
//
// Schedule arms the timer; Touch restarts a pending timer without firing,
// so a structural edit that lands mid-delay pushes the capture out instead
// of capturing a stale frame. All methods are safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	settle time.Duration
	timer  *time.Timer
	fire   func()
}

// NewScheduler creates a scheduler with the given settle window. A zero or
// negative settle falls back to DefaultSettle.
func NewScheduler(settle time.Duration, fire func()) *Scheduler {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Scheduler{settle: settle, fire: fire}
}

// Schedule arms the timer with the given delay, or the settle window when
// delay is zero. An already pending capture is rescheduled.
func (s *Scheduler) Schedule(delay time.Duration) {
	if delay <= 0 {
		delay = s.settle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.fire()
	})
}

// Touch restarts a pending timer with the full settle window. Without a
// pending capture it does nothing.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.fire()
	})
}

// Pending reports whether a capture is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Stop cancels any pending capture.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
