package hwaccel

import (
	"fmt"
	"image"

	"golang.org/x/sys/unix"

	"github.com/gogpu/hwaccel/driver"
)

// ExternalPlane is one plane of a caller-owned frame buffer.
type ExternalPlane struct {
	FD     int
	Stride uint32
	Offset uint32
}

// ExternalFrame describes a caller-owned buffer (typically a dmabuf) to
// wrap in a surface. Every plane must reference the same underlying buffer
// object; the per-plane descriptors are duplicated handles to it.
type ExternalFrame struct {
	FourCC    driver.FourCC
	Size      image.Point
	Planes    []ExternalPlane
	Protected bool
}

// rtFormatForFourCC maps a buffer fourcc to the render-target format its
// surfaces need.
func rtFormatForFourCC(f driver.FourCC) (driver.RTFormat, bool) {
	switch f {
	case driver.FourCCNV12, driver.FourCCI420, driver.FourCCYV12:
		return driver.RTFormatYUV420, true
	case driver.FourCCP010:
		return driver.RTFormatYUV420_10, true
	case driver.FourCCYUY2:
		return driver.RTFormatYUV422, true
	case driver.FourCCARGB, driver.FourCCABGR, driver.FourCCXRGB, driver.FourCCXBGR:
		return driver.RTFormatRGB32, true
	}
	return 0, false
}

// ImportFrame wraps a caller-owned buffer in a surface without copying. The
// caller keeps ownership of the file descriptors; the surface pins the
// underlying buffer for its own lifetime.
//
// For protected frames the request is phrased per vendor: Mesa takes the
// protected bit on the render-target format, everyone else on the buffer
// descriptor.
func (d *Display) ImportFrame(f *ExternalFrame) (*ScopedSurface, error) {
	rt, ok := rtFormatForFourCC(f.FourCC)
	if !ok {
		return nil, fmt.Errorf("%w: import format %s", ErrUnsupported, f.FourCC)
	}
	if len(f.Planes) == 0 {
		fatalf("ImportFrame: no planes")
	}

	// All planes share one buffer object; its size is the fd's extent. The
	// fd stays caller-owned, so its file offset is put back afterwards.
	cur, err := unix.Seek(f.Planes[0].FD, 0, unix.SEEK_CUR)
	if err != nil {
		return nil, fmt.Errorf("hwaccel: size imported buffer: %w", err)
	}
	size, err := unix.Seek(f.Planes[0].FD, 0, unix.SEEK_END)
	if err != nil {
		return nil, fmt.Errorf("hwaccel: size imported buffer: %w", err)
	}
	if _, err := unix.Seek(f.Planes[0].FD, cur, unix.SEEK_SET); err != nil {
		return nil, fmt.Errorf("hwaccel: size imported buffer: %w", err)
	}

	desc := &driver.ExternalBufferDescriptor{
		FourCC:    f.FourCC,
		Width:     uint32(f.Size.X),
		Height:    uint32(f.Size.Y),
		TotalSize: uint32(size),
	}
	for _, p := range f.Planes {
		desc.PlaneFDs = append(desc.PlaneFDs, p.FD)
		desc.PlanePitches = append(desc.PlanePitches, p.Stride)
		desc.PlaneOffsets = append(desc.PlaneOffsets, p.Offset)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireOpenLocked()

	if f.Protected {
		if d.impl == ImplementationMesaGallium {
			rt |= driver.RTFormatProtected
		} else {
			desc.Protected = true
		}
	}

	id, err := d.drv.ImportSurface(rt, desc)
	if err != nil {
		reportError(OpImportSurface, nil, err)
		return nil, fmt.Errorf("hwaccel: import surface: %w", err)
	}
	return &ScopedSurface{
		Surface: Surface{ID: id, Size: f.Size, Format: rt},
		display: d,
	}, nil
}

// ExportedPlane is one plane of an exported surface, laid out inside the
// exported buffer object.
type ExportedPlane struct {
	Stride uint32
	Offset uint32
	Size   uint32
}

// ExportedSurface is a surface's backing memory, exported for zero-copy
// sharing. The file descriptor is owned by the receiver; Close releases it.
type ExportedSurface struct {
	FourCC   driver.FourCC
	Size     image.Point
	FD       int
	ByteSize uint32
	Modifier uint64
	Planes   []ExportedPlane

	closed bool
}

// Close releases the exported file descriptor. Idempotent.
func (e *ExportedSurface) Close() error {
	if e == nil || e.closed {
		return nil
	}
	e.closed = true
	return unix.Close(e.FD)
}

// ExportSurface syncs a surface and exports its backing memory. Surfaces
// backed by more than one buffer object are not supported; IMC3 exports
// (I420 layout with swapped chroma planes) are normalized to YV12.
//
// Export through the VDPAU shim hands out handles the compositor cannot
// map, so it is rejected up front there.
func (d *Display) ExportSurface(id driver.SurfaceID, size image.Point) (*ExportedSurface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requireOpenLocked()

	if d.impl == ImplementationNVIDIAVDPAU {
		return nil, fmt.Errorf("%w: surface export on the VDPAU shim", ErrUnsupported)
	}

	if err := d.drv.SyncSurface(id); err != nil {
		reportError(OpSyncSurface, nil, err)
		return nil, fmt.Errorf("hwaccel: sync surface %d: %w", id, err)
	}
	desc, err := d.drv.ExportSurfaceHandle(id)
	if err != nil {
		reportError(OpExportSurfaceHandle, nil, err)
		return nil, fmt.Errorf("hwaccel: export surface %d: %w", id, err)
	}

	closeAll := func() {
		for _, obj := range desc.Objects {
			unix.Close(obj.FD)
		}
	}
	if len(desc.Objects) != 1 {
		closeAll()
		return nil, fmt.Errorf("%w: surface spans %d buffer objects", ErrUnsupported, len(desc.Objects))
	}

	obj := desc.Objects[0]
	out := &ExportedSurface{
		FourCC:   desc.FourCC,
		Size:     size,
		FD:       obj.FD,
		ByteSize: obj.Size,
		Modifier: obj.Modifier,
	}
	// Layers arrive in ascending offset order; size each plane against its
	// successor before any reordering.
	for i, layer := range desc.Layers {
		planeSize := obj.Size - layer.Offset
		if i+1 < len(desc.Layers) && desc.Layers[i+1].Offset > layer.Offset {
			planeSize = desc.Layers[i+1].Offset - layer.Offset
		}
		out.Planes = append(out.Planes, ExportedPlane{
			Stride: layer.Pitch,
			Offset: layer.Offset,
			Size:   planeSize,
		})
	}
	if out.FourCC == driver.FourCCIMC3 && len(out.Planes) == 3 {
		// Same bits as YV12 once the chroma planes trade places.
		out.FourCC = driver.FourCCYV12
		out.Planes[1], out.Planes[2] = out.Planes[2], out.Planes[1]
	}
	return out, nil
}
