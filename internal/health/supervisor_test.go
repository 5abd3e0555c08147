package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelstream-dev/matchmaker/internal/bus"
)

type eventLog struct {
	mu     sync.Mutex
	events []bus.Event
}

func (l *eventLog) record(ev bus.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []bus.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bus.Kind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestSupervisor(t *testing.T) (*Supervisor, clockwork.FakeClock, *eventLog) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	b := bus.New()
	log := &eventLog{}
	b.Subscribe(log.record)
	return NewSupervisor(fc, b), fc, log
}

func healthyCheck(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusHealthy}
}

func TestWorse(t *testing.T) {
	assert.Equal(t, StatusHealthy, Worse(StatusHealthy, StatusHealthy))
	assert.Equal(t, StatusDegraded, Worse(StatusHealthy, StatusDegraded))
	assert.Equal(t, StatusUnhealthy, Worse(StatusDegraded, StatusUnhealthy))
	assert.Equal(t, StatusUnhealthy, Worse(StatusUnhealthy, StatusHealthy))
}

func TestEvaluateAllAggregatesWorst(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	sup.RegisterCheck("a", healthyCheck)
	sup.RegisterCheck("b", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded, Details: "queue backed up"}
	})

	report := sup.EvaluateAll(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, StatusHealthy, report.Checks["a"].Status)
	assert.Equal(t, StatusDegraded, report.Checks["b"].Status)
	assert.Equal(t, StatusDegraded, sup.Overall())
}

func TestOverallIsHealthyBeforeFirstEvaluation(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	sup.RegisterCheck("a", healthyCheck)
	assert.Equal(t, StatusHealthy, sup.Overall())
}

func TestCheckPanicRecordsUnhealthy(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	sup.RegisterCheck("boom", func(ctx context.Context) CheckResult {
		panic("check bug")
	})

	report := sup.EvaluateAll(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["boom"].Error, "panicked")
}

func TestUnhealthyTransitionEmitsEventsAndRecovers(t *testing.T) {
	sup, _, log := newTestSupervisor(t)

	// Fails once, then recovers on the retry.
	calls := 0
	sup.RegisterCheck("flaky", func(ctx context.Context) CheckResult {
		calls++
		if calls == 1 {
			return CheckResult{Status: StatusUnhealthy, Details: "first call fails"}
		}
		return CheckResult{Status: StatusHealthy}
	})

	sup.EvaluateAll(context.Background())

	assert.Equal(t, 2, calls, "recovery re-runs the check once")
	assert.Equal(t, []bus.Kind{bus.HealthChanged, bus.ServiceUnhealthy, bus.RecoveryOk}, log.kinds())
	assert.Equal(t, StatusHealthy, sup.Overall())
}

func TestRecoveryFailure(t *testing.T) {
	sup, _, log := newTestSupervisor(t)

	sup.RegisterCheck("down", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})

	sup.EvaluateAll(context.Background())

	assert.Equal(t, []bus.Kind{bus.HealthChanged, bus.ServiceUnhealthy, bus.RecoveryFail}, log.kinds())
	assert.Equal(t, StatusUnhealthy, sup.Overall())
}

func TestNoEventsWithoutStatusChange(t *testing.T) {
	sup, _, log := newTestSupervisor(t)

	sup.RegisterCheck("steady", healthyCheck)

	sup.EvaluateAll(context.Background())
	sup.EvaluateAll(context.Background())

	assert.Empty(t, log.kinds())
}

func TestCheckTimeoutRecordsUnhealthy(t *testing.T) {
	sup, fc, _ := newTestSupervisor(t)

	sup.RegisterCheck("stuck", func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{Status: StatusHealthy}
	})

	reports := make(chan Report, 1)
	go func() {
		reports <- sup.EvaluateAll(context.Background())
	}()

	// First evaluation parks on the timeout timer, then the recovery
	// attempt parks on a second one.
	fc.BlockUntil(1)
	fc.Advance(DefaultCheckTimeout + time.Second)
	fc.BlockUntil(1)
	fc.Advance(DefaultCheckTimeout + time.Second)

	report := <-reports
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["stuck"].Error, "timed out")
}
