package hwaccel

import (
	"fmt"
	"strings"

	"github.com/gogpu/hwaccel/driver"
)

// Versions the driver handshake requires. A driver reporting an older
// interface than this is rejected during acquisition.
const (
	requiredVersionMajor = 1
	requiredVersionMinor = 4
)

// Implementation identifies the driver vendor backing a display. It is
// derived from the vendor string once per connection and drives a handful of
// vendor-specific workarounds.
type Implementation int

const (
	ImplementationOther Implementation = iota
	ImplementationMesaGallium
	ImplementationIntelI965
	ImplementationIntelIHD
	ImplementationNVIDIAVDPAU
)

func (i Implementation) String() string {
	switch i {
	case ImplementationMesaGallium:
		return "mesa-gallium"
	case ImplementationIntelI965:
		return "intel-i965"
	case ImplementationIntelIHD:
		return "intel-ihd"
	case ImplementationNVIDIAVDPAU:
		return "nvidia-vdpau"
	}
	return "other"
}

// parseImplementation classifies a driver vendor string.
func parseImplementation(vendor string) Implementation {
	switch {
	case strings.HasPrefix(vendor, "Mesa Gallium driver"):
		return ImplementationMesaGallium
	case strings.HasPrefix(vendor, "Intel i965 driver"):
		return ImplementationIntelI965
	case strings.HasPrefix(vendor, "Intel iHD driver"):
		return ImplementationIntelIHD
	case strings.HasPrefix(vendor, "Splitted-Desktop Systems VDPAU"):
		return ImplementationNVIDIAVDPAU
	}
	return ImplementationOther
}

// Display is a ref-counted connection to one acceleration device. All
// sessions created against the same Display share its driver lock; the
// driver is opened on the first acquisition and closed on the last release.
//
// Most programs use the process-wide display through AcquireDisplay. Tests
// and multi-device setups build their own with NewDisplay.
type Display struct {
	mu driverLock

	drv  driver.Driver
	refs int
	fd   int

	vendor string
	impl   Implementation
	major  int
	minor  int

	// Capability caches. Probed lazily under mu on first use and kept for
	// the life of the process, surviving close/reopen cycles.
	caps        []ProfileInfo
	capsProbed  bool
	formats     []driver.ImageFormat
	fmtsProbed  bool
	lowPowerOff bool
}

// defaultDisplay is the process-wide display, backed by the first registered
// driver.
var defaultDisplay = &Display{fd: -1}

// AcquireDisplay acquires the process-wide display, opening the driver on
// the first acquisition. Every successful call must be paired with Release.
func AcquireDisplay() (*Display, error) {
	return defaultDisplay.acquire()
}

// NewDisplay returns an unacquired display backed by the given driver.
// Callers acquire it with Acquire and pair each success with Release.
func NewDisplay(drv driver.Driver) *Display {
	return &Display{drv: drv, fd: -1}
}

// Acquire opens the display's driver on the first acquisition and bumps the
// reference count on later ones.
func (d *Display) Acquire() (*Display, error) { return d.acquire() }

func (d *Display) acquire() (*Display, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.refs > 0 {
		d.refs++
		return d, nil
	}

	drv := d.drv
	if drv == nil {
		regs := driver.Drivers()
		if len(regs) == 0 {
			return nil, ErrNoDriver
		}
		drv = regs[0]
	}

	major, minor, err := drv.Open(d.fd)
	if err != nil {
		reportError(OpOpen, nil, err)
		return nil, fmt.Errorf("%w: %s: %v", ErrNoDriver, drv.Name(), err)
	}
	if major < requiredVersionMajor ||
		(major == requiredVersionMajor && minor < requiredVersionMinor) {
		// Roll back: the connection opened but is unusable.
		if cerr := drv.Close(); cerr != nil {
			reportError(OpClose, nil, cerr)
		}
		return nil, fmt.Errorf("%w: driver reports %d.%d, need at least %d.%d",
			driver.ErrVersionMismatch, major, minor, requiredVersionMajor, requiredVersionMinor)
	}

	d.drv = drv
	d.major, d.minor = major, minor
	d.vendor = drv.VendorString()
	d.impl = parseImplementation(d.vendor)
	d.refs = 1

	Logger().Info("display opened",
		"driver", drv.Name(),
		"vendor", d.vendor,
		"implementation", d.impl.String(),
		"version", fmt.Sprintf("%d.%d", major, minor))
	return d, nil
}

// Release undoes one Acquire. The driver connection is closed when the last
// reference goes away. Releasing an unacquired display panics.
func (d *Display) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.refs <= 0 {
		fatalf("display released more times than acquired")
	}
	d.refs--
	if d.refs > 0 {
		return
	}
	if err := d.drv.Close(); err != nil {
		reportError(OpClose, nil, err)
	}
	Logger().Info("display closed", "driver", d.drv.Name())
}

// Implementation returns the detected driver vendor. Valid after the first
// successful acquisition.
func (d *Display) Implementation() Implementation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.impl
}

// VendorString returns the driver's vendor string. Valid after the first
// successful acquisition.
func (d *Display) VendorString() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vendor
}

// Version returns the negotiated driver interface version.
func (d *Display) Version() (major, minor int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.major, d.minor
}

// requireOpen panics unless the display is acquired. Session entry points
// call this before touching the driver.
func (d *Display) requireOpenLocked() {
	d.mu.AssertHeld()
	if d.refs <= 0 {
		fatalf("display used after last release")
	}
}
