package hwaccel

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the package. Driver failures are wrapped with
// %w around the driver's error; test with errors.Is.
var (
	// ErrUnsupported means the capability registry has no entry for the
	// requested (mode, profile, entrypoint) combination, or a requested
	// parameter (resolution, format, rotation) is outside the reported
	// capability.
	ErrUnsupported = errors.New("hwaccel: unsupported configuration")

	// ErrNoDriver means no usable driver was found or its handshake
	// failed.
	ErrNoDriver = errors.New("hwaccel: no usable driver")

	// ErrClosed means the session or display has been closed.
	ErrClosed = errors.New("hwaccel: closed")

	// ErrProtectedSessionDead means the protected session was lost (for
	// example by a TEE reset) and the session must be torn down and
	// recreated.
	ErrProtectedSessionDead = errors.New("hwaccel: protected session dead")

	// ErrBufferTooSmall means a caller-supplied destination cannot hold
	// the data being copied out.
	ErrBufferTooSmall = errors.New("hwaccel: destination buffer too small")
)

// fatalf reports programmer misuse (API contract violations, not runtime
// driver failures) by panicking.
func fatalf(format string, args ...any) {
	panic("hwaccel: " + fmt.Sprintf(format, args...))
}
