package utils

import "time"

// Throttle enforces a fixed pause between consecutive operations in a
// serialized loop. The sleep function is injectable so tests can run
// without real wall-clock waiting.
type Throttle struct {
	delay time.Duration
	sleep func(time.Duration)
}

// NewThrottle creates a Throttle that sleeps for delay on each Wait.
func NewThrottle(delay time.Duration) *Throttle {
	return &Throttle{delay: delay, sleep: time.Sleep}
}

// NewThrottleFunc creates a Throttle with a custom sleep capability.
func NewThrottleFunc(delay time.Duration, sleep func(time.Duration)) *Throttle {
	return &Throttle{delay: delay, sleep: sleep}
}

// Wait pauses for the configured delay.
func (t *Throttle) Wait() {
	if t.delay > 0 {
		t.sleep(t.delay)
	}
}
