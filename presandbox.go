package hwaccel

import "golang.org/x/sys/unix"

// renderNodePath is the DRM render node the process-wide display connects
// through.
const renderNodePath = "/dev/dri/renderD128"

// PreSandboxInitialization prepares the process-wide display for use inside
// a sandbox: it opens the render node and runs the capability probe while
// the filesystem and driver libraries are still reachable. The opened fd and
// the probed capability caches survive sandbox entry; later acquisitions
// need neither filesystem nor probing.
//
// Best effort: failures are logged and leave the process able to run
// without acceleration.
func PreSandboxInitialization() {
	fd, err := unix.Open(renderNodePath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		Logger().Warn("render node unavailable", "path", renderNodePath, "err", err)
	} else {
		defaultDisplay.mu.Lock()
		defaultDisplay.fd = fd
		defaultDisplay.mu.Unlock()
	}

	d, err := AcquireDisplay()
	if err != nil {
		Logger().Warn("pre-sandbox driver handshake failed", "err", err)
		return
	}
	d.mu.Lock()
	d.capabilitiesLocked()
	d.imageFormatsLocked()
	d.mu.Unlock()
	d.Release()
}
