package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsJobOnInterval(t *testing.T) {
	fc := NewFake()
	s := NewScheduler(fc)
	defer s.Stop()

	var runs atomic.Int64
	done := make(chan struct{}, 8)
	s.Every(time.Minute, func() {
		runs.Add(1)
		done <- struct{}{}
	})

	// Wait for the ticker goroutine to park on the fake clock.
	fc.BlockUntil(1)

	fc.Advance(time.Minute)
	<-done
	fc.Advance(time.Minute)
	<-done

	assert.Equal(t, int64(2), runs.Load())
}

func TestSchedulerDoesNotFireEarly(t *testing.T) {
	fc := NewFake()
	s := NewScheduler(fc)
	defer s.Stop()

	var runs atomic.Int64
	s.Every(time.Minute, func() { runs.Add(1) })

	fc.BlockUntil(1)
	fc.Advance(59 * time.Second)

	assert.Equal(t, int64(0), runs.Load())
}

func TestSchedulerStopWaitsForJobs(t *testing.T) {
	fc := NewFake()
	s := NewScheduler(fc)

	s.Every(time.Minute, func() {})
	fc.BlockUntil(1)

	// Stop must return promptly and be safe to call twice.
	s.Stop()
	s.Stop()

	// Jobs registered after Stop never run.
	var runs atomic.Int64
	s.Every(time.Minute, func() { runs.Add(1) })
	assert.Equal(t, int64(0), runs.Load())
}
