package hwaccel

import (
	"fmt"
	"image"

	"github.com/gogpu/hwaccel/driver"
)

// Surface is a driver-allocated render target.
type Surface struct {
	ID     driver.SurfaceID
	Size   image.Point
	Format driver.RTFormat
}

// ScopedSurface is a Surface owning its driver allocation. Close destroys
// it; the display connection is kept alive by the session that allocated it.
type ScopedSurface struct {
	Surface
	display *Display
	closed  bool
}

// Close destroys the surface. Idempotent.
func (s *ScopedSurface) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	s.display.mu.Lock()
	if err := s.display.drv.DestroySurfaces([]driver.SurfaceID{s.ID}); err != nil {
		reportError(OpDestroySurfaces, nil, err)
	}
	s.display.mu.Unlock()
}

// CreateSurfaces allocates count surfaces of the given render-target format
// and size. The usage hints are advisory; they are dropped entirely on the
// VDPAU shim, which chokes on the attribute.
func (s *Session) CreateSurfaces(format driver.RTFormat, size image.Point, hints SurfaceUsageHint, count int) ([]driver.SurfaceID, error) {
	s.enter()
	defer s.leave()
	return s.createSurfacesLocked(format, size, hints, count)
}

func (s *Session) createSurfacesLocked(format driver.RTFormat, size image.Point, hints SurfaceUsageHint, count int) ([]driver.SurfaceID, error) {
	d := s.display
	d.mu.AssertHeld()
	if count <= 0 {
		fatalf("CreateSurfaces: count %d", count)
	}

	if d.impl == ImplementationNVIDIAVDPAU {
		hints = driver.UsageHintGeneric
	}
	ids, err := d.drv.CreateSurfaces(format, uint32(size.X), uint32(size.Y), count, hints, 0)
	if err != nil {
		reportError(OpCreateSurfaces, s.report, err)
		return nil, fmt.Errorf("hwaccel: create %d surfaces: %w", count, err)
	}
	return ids, nil
}

// CreateContextAndSurfaces allocates surfaces and then the session's
// context for the same size. If context creation fails the surfaces are
// destroyed again, leaving the session unchanged.
func (s *Session) CreateContextAndSurfaces(format driver.RTFormat, size image.Point, hints SurfaceUsageHint, count int) ([]driver.SurfaceID, error) {
	s.enter()
	defer s.leave()

	ids, err := s.createSurfacesLocked(format, size, hints, count)
	if err != nil {
		return nil, err
	}
	if err := s.createContextLocked(size); err != nil {
		s.destroySurfacesLocked(ids)
		return nil, err
	}
	return ids, nil
}

// CreateScopedSurfaces allocates surfaces that own their driver allocation,
// optionally constrained to a specific pixel format fourcc.
func (s *Session) CreateScopedSurfaces(format driver.RTFormat, size image.Point, hints SurfaceUsageHint, count int, fourcc driver.FourCC) ([]*ScopedSurface, error) {
	s.enter()
	defer s.leave()
	d := s.display
	if count <= 0 {
		fatalf("CreateScopedSurfaces: count %d", count)
	}

	h := hints
	if d.impl == ImplementationNVIDIAVDPAU {
		h = driver.UsageHintGeneric
	}
	ids, err := d.drv.CreateSurfaces(format, uint32(size.X), uint32(size.Y), count, h, fourcc)
	if err != nil {
		reportError(OpCreateSurfaces, s.report, err)
		return nil, fmt.Errorf("hwaccel: create %d surfaces: %w", count, err)
	}
	out := make([]*ScopedSurface, len(ids))
	for i, id := range ids {
		out[i] = &ScopedSurface{
			Surface: Surface{ID: id, Size: size, Format: format},
			display: d,
		}
	}
	return out, nil
}

// DestroySurfaces destroys the given surfaces. Invalid ids are filtered out
// first, so the slice may contain already-invalidated entries.
func (s *Session) DestroySurfaces(ids []driver.SurfaceID) {
	s.enter()
	defer s.leave()
	s.destroySurfacesLocked(ids)
}

func (s *Session) destroySurfacesLocked(ids []driver.SurfaceID) {
	d := s.display
	d.mu.AssertHeld()

	live := make([]driver.SurfaceID, 0, len(ids))
	for _, id := range ids {
		if id != driver.InvalidSurface {
			live = append(live, id)
		}
	}
	if len(live) == 0 {
		return
	}
	if err := d.drv.DestroySurfaces(live); err != nil {
		reportError(OpDestroySurfaces, s.report, err)
	}
}

// DestroyContextAndSurfaces destroys the context and then the surfaces it
// was rendering into.
func (s *Session) DestroyContextAndSurfaces(ids []driver.SurfaceID) {
	s.enter()
	defer s.leave()
	s.destroyContextLocked()
	s.destroySurfacesLocked(ids)
}

// SyncSurface blocks until all work submitted against the surface has
// completed. This, not EndPicture returning, is the completion signal.
func (s *Session) SyncSurface(id driver.SurfaceID) error {
	s.enter()
	defer s.leave()
	return s.syncSurfaceLocked(id)
}

func (s *Session) syncSurfaceLocked(id driver.SurfaceID) error {
	d := s.display
	d.mu.AssertHeld()
	if err := d.drv.SyncSurface(id); err != nil {
		reportError(OpSyncSurface, s.report, err)
		return fmt.Errorf("hwaccel: sync surface %d: %w", id, err)
	}
	return nil
}
