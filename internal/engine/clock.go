package engine

import "time"

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the system time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// TimerQueue arms the delayed re-attempt timers. Tests swap in a manual
// queue and fire timers explicitly instead of waiting real minutes.
type TimerQueue interface {
	AfterFunc(d time.Duration, fn func())
}

// SystemTimers schedules on real wall-clock timers.
type SystemTimers struct{}

func (SystemTimers) AfterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
