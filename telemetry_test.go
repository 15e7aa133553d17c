package hwaccel

import (
	"testing"

	"github.com/gogpu/hwaccel/driver"
	"github.com/gogpu/hwaccel/driver/fake"
)

func TestDriverOpNamesComplete(t *testing.T) {
	for op := OpOpen; op <= OpProtectedExecute; op++ {
		if op.String() == "" || op.String() == "unknown" {
			t.Errorf("op %d has no name", int(op))
		}
	}
	if DriverOp(len(driverOpNames)).String() != "unknown" {
		t.Error("out-of-range op not reported as unknown")
	}
}

func TestErrorReporter(t *testing.T) {
	f := fake.New()
	var reported []DriverOp
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main,
		WithErrorReporter(func(op DriverOp) { reported = append(reported, op) }))

	f.Fail["CreateBuffer"] = driver.ErrAllocationFailed
	s.SubmitBuffer(driver.BufferSliceData, []byte{1})
	delete(f.Fail, "CreateBuffer")

	if len(reported) != 1 || reported[0] != OpCreateBuffer {
		t.Errorf("reported %v, want [create_buffer]", reported)
	}
}
