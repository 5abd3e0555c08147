// Package clock wraps the process time source so every timer-driven path in
// the matchmaker (sweeps, cooldowns, health evaluation) runs against an
// injectable clock. Tests drive virtual time through clockwork's fake clock
// instead of sleeping.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source used throughout the matchmaker.
type Clock = clockwork.Clock

// NewReal returns a Clock backed by the system clock.
func NewReal() Clock {
	return clockwork.NewRealClock()
}

// NewFake returns a fake Clock for tests, parked at an arbitrary instant.
func NewFake() clockwork.FakeClock {
	return clockwork.NewFakeClock()
}

// Scheduler runs periodic jobs against a shared Clock. Each job gets
// its own goroutine; Stop cancels all of them and waits for exit, which is
// what lets shutdown guarantee no sweep fires after listeners are closed.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler on the given clock.
func NewScheduler(c Clock) *Scheduler {
	return &Scheduler{
		clock:  c,
		stopCh: make(chan struct{}),
	}
}

// Every runs fn on the given interval until the scheduler is stopped.
// The first run happens one interval after registration, not immediately.
func (s *Scheduler) Every(interval time.Duration, fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				fn()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop cancels all jobs and blocks until their goroutines have exited.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
