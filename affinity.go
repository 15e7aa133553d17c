package hwaccel

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID returns the current goroutine's id by parsing the first stack
// header line ("goroutine N [running]:"). Costs one small Stack call, paid
// only when affinity checking is enabled.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := buf[:n]
	s = bytes.TrimPrefix(s, []byte("goroutine "))
	if i := bytes.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// affinityChecker pins a session to the goroutine that created it. A nil
// checker disables the assertion.
type affinityChecker struct {
	goid uint64
}

func newAffinityChecker() *affinityChecker {
	return &affinityChecker{goid: goroutineID()}
}

func (c *affinityChecker) check() {
	if c == nil {
		return
	}
	if id := goroutineID(); id != c.goid {
		fatalf("session used from goroutine %d, created on %d (use WithoutAffinityCheck to allow this)", id, c.goid)
	}
}
