// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driver defines the interface between the hwaccel session layer and
// a native video-acceleration driver (libva or a compatible stack).
//
// The interface mirrors the driver's own resource model: opaque integer
// handles for configurations, contexts, surfaces and buffers, created and
// destroyed explicitly. Implementations are NOT required to be safe for
// concurrent use; the session layer serializes every call behind a single
// lock shared by all sessions on the same display connection.
//
// Implementations are provided by driver packages (driver/libva for the real
// hardware path, driver/fake for tests) and register themselves on import:
//
//	import _ "github.com/gogpu/hwaccel/driver/libva"
package driver

import (
	"errors"
	"sync"
)

// Driver is the native video-acceleration driver boundary.
//
// Every method maps to exactly one driver entry point. Methods must not
// retry, must not cache, and must report the driver's failure as an error;
// policy (rollback, capability gating, telemetry) lives in the session layer.
type Driver interface {
	// Name returns the driver identifier (e.g. "libva", "fake").
	// It must not cause the driver to be opened.
	Name() string

	// Open establishes the connection to the device. fd is the device-node
	// file descriptor to connect through, or -1 to let the driver resolve
	// one itself. It returns the negotiated interface version.
	Open(fd int) (major, minor int, err error)

	// Close terminates the connection. Closing an unopened driver is an
	// error.
	Close() error

	// VendorString returns the driver's vendor identification string.
	// Valid only while open.
	VendorString() string

	// QueryProfiles returns every profile the driver reports as supported,
	// whether or not the caller recognizes it.
	QueryProfiles() ([]Profile, error)

	// QueryEntrypoints returns the entrypoints supported for profile.
	QueryEntrypoints(profile Profile) ([]Entrypoint, error)

	// GetConfigAttributes fills in the Value of each attribute in attribs
	// with the driver's supported value set for (profile, entrypoint).
	GetConfigAttributes(profile Profile, entrypoint Entrypoint, attribs []ConfigAttrib) error

	// CreateConfig creates a configuration for (profile, entrypoint) with
	// the given required attributes (may be empty).
	CreateConfig(profile Profile, entrypoint Entrypoint, attribs []ConfigAttrib) (ConfigID, error)

	DestroyConfig(id ConfigID) error

	// QueryConfigAttributes returns all attributes of an existing
	// configuration, including ones the creator did not pass.
	QueryConfigAttributes(id ConfigID) ([]ConfigAttrib, error)

	// QuerySurfaceAttributes reports the surface constraints of a
	// configuration: resolution bounds and allocatable pixel formats.
	QuerySurfaceAttributes(id ConfigID) (SurfaceConstraints, error)

	// CreateSurfaces allocates count surfaces of the given render-target
	// format and pixel dimensions. A zero UsageHint and zero FourCC leave
	// the corresponding attributes unset.
	CreateSurfaces(format RTFormat, width, height uint32, count int, hints UsageHint, fourcc FourCC) ([]SurfaceID, error)

	// ImportSurface creates a single surface backed by the caller-owned
	// buffer described by desc instead of driver-allocated memory. The
	// surface keeps the underlying buffer alive.
	ImportSurface(format RTFormat, desc *ExternalBufferDescriptor) (SurfaceID, error)

	// DestroySurfaces releases the given surfaces. Callers must filter out
	// invalid ids first; implementations may treat them as fatal.
	DestroySurfaces(ids []SurfaceID) error

	// SyncSurface blocks until all work queued against the surface has
	// completed. This is the authoritative completion signal.
	SyncSurface(id SurfaceID) error

	// ExportSurfaceHandle describes the surface's backing memory as a set
	// of per-layer handles suitable for zero-copy sharing. The returned
	// file descriptors are owned by the caller.
	ExportSurfaceHandle(id SurfaceID) (*SurfaceDescriptor, error)

	// CreateContext creates an execution context against config. Width and
	// height may be zero for size-independent (video processing) contexts.
	CreateContext(config ConfigID, width, height uint32, flags ContextFlag) (ContextID, error)

	DestroyContext(id ContextID) error

	// CreateBuffer allocates a command buffer of the given type and byte
	// size against a context. For protected execute buffers the context
	// argument carries a protected session id instead (the driver's
	// create-buffer entry point is shared between the two).
	CreateBuffer(context ContextID, typ BufferType, size int) (BufferID, error)

	// MapBuffer maps the buffer and returns a view of its memory. The
	// slice is valid until UnmapBuffer.
	MapBuffer(id BufferID) ([]byte, error)

	// MapCodedBuffer maps an encode-output buffer and returns its chain of
	// coded-data segments in order. Segment Data slices are valid until
	// UnmapBuffer.
	MapCodedBuffer(id BufferID) ([]CodedSegment, error)

	UnmapBuffer(id BufferID) error
	DestroyBuffer(id BufferID) error

	// BeginPicture readies the context to render into target. It must be
	// paired with EndPicture.
	BeginPicture(context ContextID, target SurfaceID) error

	// RenderPicture submits command buffers to the context. buffers must
	// not be empty.
	RenderPicture(context ContextID, buffers []BufferID) error

	// EndPicture finalizes the submission started by BeginPicture. It may
	// block until the hardware completes, but callers must use SyncSurface
	// as the completion signal.
	EndPicture(context ContextID) error

	// QueryImageFormats returns the image formats usable with DeriveImage
	// and CreateImage.
	QueryImageFormats() ([]ImageFormat, error)

	// DeriveImage maps the surface's internal storage directly as an
	// image. Returns ErrOperationFailed if the driver cannot derive, in
	// which case callers fall back to CreateImage+PutImage.
	DeriveImage(surface SurfaceID) (*Image, error)

	// CreateImage allocates an image of the given format and dimensions.
	CreateImage(format ImageFormat, width, height uint32) (*Image, error)

	DestroyImage(id ImageID) error

	// PutImage copies the image contents into the surface, converting if
	// the formats differ. The same rectangle is used for source and
	// destination.
	PutImage(surface SurfaceID, image ImageID, width, height uint32) error

	// QueryPipelineCaps reports video-processing capabilities of the
	// context (rotation support).
	QueryPipelineCaps(context ContextID) (PipelineCaps, error)

	// CreateProtectedSession creates a protected (DRM) session against a
	// protected configuration.
	CreateProtectedSession(config ConfigID) (ProtectedSessionID, error)

	DestroyProtectedSession(id ProtectedSessionID) error

	// AttachProtectedSession multiplexes the protected session onto an
	// execution context. At most one session may be attached at a time.
	AttachProtectedSession(context ContextID, session ProtectedSessionID) error

	DetachProtectedSession(context ContextID) error

	// ProtectedExecute submits a protected execute buffer (created with
	// CreateBuffer against the session id) to the session's trusted
	// execution environment and waits for the result to be written back
	// into the buffer.
	ProtectedExecute(session ProtectedSessionID, buf BufferID) error
}

// Sentinel errors reported by implementations. The session layer keys
// behavior off these; any other error is treated as a plain driver failure.
var (
	// ErrNotInstalled means the native library or device node required by
	// the driver is not present on the system.
	ErrNotInstalled = errors.New("driver: missing required library or device")

	// ErrVersionMismatch means the driver's interface version is older
	// than the version this module was built against.
	ErrVersionMismatch = errors.New("driver: interface version too old")

	// ErrOperationFailed is the driver's generic can't-do-that status. It
	// is distinguished because DeriveImage uses it to request the
	// CreateImage+PutImage fallback.
	ErrOperationFailed = errors.New("driver: operation failed")

	// ErrInvalidID means an operation referenced a destroyed or never
	// allocated handle.
	ErrInvalidID = errors.New("driver: invalid resource id")

	// ErrAllocationFailed means the driver could not allocate the
	// requested resource.
	ErrAllocationFailed = errors.New("driver: allocation failed")
)

// Drivers returns the registered Drivers.
// Client code imports specific driver packages and calls this from setup
// code; drivers that do not register themselves on init are not considered.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}

// Register registers a Driver. Driver implementations call Register exactly
// once, from an init function. Registering a second driver with the same
// name replaces the first.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			return
		}
	}
	drivers = append(drivers, drv)
}

var (
	mu      sync.Mutex
	drivers = make([]Driver, 0, 1)
)
