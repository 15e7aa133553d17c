package hwaccel

import "testing"

func TestDriverLockAssertHeld(t *testing.T) {
	var l driverLock
	mustPanic(t, l.AssertHeld)

	l.Lock()
	l.AssertHeld()
	l.Unlock()

	mustPanic(t, l.AssertHeld)
}
