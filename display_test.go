package hwaccel

import (
	"errors"
	"testing"

	"github.com/gogpu/hwaccel/driver"
	"github.com/gogpu/hwaccel/driver/fake"
)

func mustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	fn()
}

func TestDisplayAcquireRelease(t *testing.T) {
	f := fake.New()
	d := NewDisplay(f)

	if _, err := d.Acquire(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := d.Acquire(); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if f.Calls["Open"] != 1 {
		t.Errorf("Open called %d times, want 1", f.Calls["Open"])
	}

	d.Release()
	if f.Calls["Close"] != 0 {
		t.Error("driver closed while references remain")
	}
	d.Release()
	if f.Calls["Close"] != 1 {
		t.Errorf("Close called %d times after last release, want 1", f.Calls["Close"])
	}
}

func TestDisplayVersionRejected(t *testing.T) {
	f := fake.New()
	f.Major, f.Minor = 1, 3
	d := NewDisplay(f)

	_, err := d.Acquire()
	if !errors.Is(err, driver.ErrVersionMismatch) {
		t.Fatalf("acquire error %v, want ErrVersionMismatch", err)
	}
	// The connection opened before the handshake failed; it must be rolled
	// back.
	if f.Calls["Close"] != 1 {
		t.Errorf("Close called %d times, want 1", f.Calls["Close"])
	}
}

func TestDisplayOverReleasePanics(t *testing.T) {
	f := fake.New()
	d := NewDisplay(f)
	if _, err := d.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	d.Release()
	mustPanic(t, d.Release)
}

func TestDisplayReopen(t *testing.T) {
	f := fake.New()
	d := NewDisplay(f)

	for i := 0; i < 2; i++ {
		if _, err := d.Acquire(); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		d.Release()
	}
	if f.Calls["Open"] != 2 || f.Calls["Close"] != 2 {
		t.Errorf("Open/Close called %d/%d times, want 2/2", f.Calls["Open"], f.Calls["Close"])
	}
}

func TestParseImplementation(t *testing.T) {
	cases := []struct {
		vendor string
		want   Implementation
	}{
		{"Mesa Gallium driver 23.2.1 for AMD Radeon", ImplementationMesaGallium},
		{"Intel i965 driver for Intel(R) Skylake - 2.4.1", ImplementationIntelI965},
		{"Intel iHD driver for Intel(R) Gen Graphics - 22.1.1 ()", ImplementationIntelIHD},
		{"Splitted-Desktop Systems VDPAU backend for VA-API", ImplementationNVIDIAVDPAU},
		{"fake driver 1.0", ImplementationOther},
		{"", ImplementationOther},
	}
	for _, c := range cases {
		if got := parseImplementation(c.vendor); got != c.want {
			t.Errorf("parseImplementation(%q) = %v, want %v", c.vendor, got, c.want)
		}
	}
}

func TestDisplayVendorInfo(t *testing.T) {
	f := fake.New()
	f.Vendor = "Intel iHD driver for Intel(R) Gen Graphics - 22.1.1 ()"
	d := NewDisplay(f)
	if _, err := d.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer d.Release()

	if d.Implementation() != ImplementationIntelIHD {
		t.Errorf("implementation %v, want intel-ihd", d.Implementation())
	}
	if d.VendorString() != f.Vendor {
		t.Errorf("vendor %q", d.VendorString())
	}
	if major, minor := d.Version(); major != 1 || minor != 22 {
		t.Errorf("version %d.%d, want 1.22", major, minor)
	}
}
