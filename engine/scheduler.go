package engine

import (
	"sync"
	"time"
)

// Scheduler runs fire-once callbacks keyed by instance and step.
// Scheduling a key again replaces its pending callback.
type Scheduler interface {
	ScheduleOnce(instanceID, step string, at time.Time, f func())
}

// NopScheduler never fires. Auto-advance then relies on the Worker.
type NopScheduler struct{}

func (NopScheduler) ScheduleOnce(string, string, time.Time, func()) {}

type timerKey struct {
	instanceID string
	step       string
}

// TimerScheduler schedules callbacks with in-process timers.
// Timers are lost on restart; the Worker covers those.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[timerKey]*time.Timer
	now    func() time.Time
}

// NewTimerScheduler creates a new in-process scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[timerKey]*time.Timer),
		now:    time.Now,
	}
}

// ScheduleOnce implements the Scheduler interface.
func (s *TimerScheduler) ScheduleOnce(instanceID, step string, at time.Time, f func()) {
	key := timerKey{instanceID: instanceID, step: step}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(at.Sub(s.now()), func() {
		s.mu.Lock()
		if s.timers[key] == t {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		f()
	})
	s.timers[key] = t
}

// Len returns the number of pending timers.
func (s *TimerScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all pending timers.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
}
