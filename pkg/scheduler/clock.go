package scheduler

import "time"

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so the wake-up timer can be driven by tests.
// AfterFunc must run f on its own goroutine, never inline.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
