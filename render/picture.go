// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render binds decoded surfaces to the host compositor's GPU stack.
//
// A Picture is one presentable output slot: a surface plus whatever backend
// resource (dmabuf-backed texture, X pixmap, ANGLE image) the compositor
// consumes. Backend packages register factories; the host selects a backend
// once at startup.
package render

import (
	"errors"
	"image"
	"sync"

	"github.com/gogpu/hwaccel"
)

// Backend identifies a compositing path.
type Backend string

const (
	// BackendDRM shares surfaces as dmabufs bound into GPU textures.
	BackendDRM Backend = "drm"

	// BackendX11 presents through X pixmaps.
	BackendX11 Backend = "x11"

	// BackendANGLE presents through EGL images on ANGLE.
	BackendANGLE Backend = "angle"
)

// ErrBackendNotAvailable is returned when no registered backend can serve.
var ErrBackendNotAvailable = errors.New("render: no backend available")

// BindImageFunc imports an exported surface into the compositor's image
// namespace. The compositor supplies it; picture implementations call it
// once per picture.
type BindImageFunc func(exported *hwaccel.ExportedSurface, layouts []PlaneLayout) error

// Picture is one output slot a decoder renders into and a compositor
// presents from.
type Picture interface {
	// Surface returns the underlying acceleration surface.
	Surface() hwaccel.Surface

	// Size returns the picture's pixel dimensions.
	Size() image.Point

	// Close releases the surface and the backend binding.
	Close()
}

// Factory creates pictures for one backend. The session allocates the
// surfaces; the device and bind func come from the compositor.
type Factory func(session *hwaccel.Session, size image.Point, device DeviceHandle, bind BindImageFunc) (Picture, error)

// registry holds registered picture factories.
var (
	registryMu sync.RWMutex
	factories  = make(map[Backend]Factory)
	// Priority order for backend selection (first available wins).
	// DRM is the zero-copy path; X11 and ANGLE are compatibility paths.
	backendPriority = []Backend{BackendDRM, BackendX11, BackendANGLE}
)

// Register registers a picture factory for a backend. Typically called from
// init functions in backend packages. Registering the same backend twice
// replaces the factory.
func Register(b Backend, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[b] = f
}

// Unregister removes a backend from the registry. Useful for testing.
func Unregister(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, b)
}

// Available returns the registered backends.
func Available() []Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Backend, 0, len(factories))
	for b := range factories {
		out = append(out, b)
	}
	return out
}

// Get returns the factory for a backend, or nil if none is registered.
func Get(b Backend) Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return factories[b]
}

// Default returns the best available factory by priority, or nil when
// nothing is registered.
func Default() Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, b := range backendPriority {
		if f, ok := factories[b]; ok {
			return f
		}
	}
	for _, f := range factories {
		return f
	}
	return nil
}

// NewPicture creates a picture through the named backend, or the default
// when b is empty.
func NewPicture(b Backend, session *hwaccel.Session, size image.Point, device DeviceHandle, bind BindImageFunc) (Picture, error) {
	var f Factory
	if b == "" {
		f = Default()
	} else {
		f = Get(b)
	}
	if f == nil {
		return nil, ErrBackendNotAvailable
	}
	return f(session, size, device, bind)
}
