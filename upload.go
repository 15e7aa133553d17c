package hwaccel

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/hwaccel/driver"
)

// Frame is a CPU-side planar YUV frame to upload into a surface. Two
// layouts are supported: I420 (three planes) and NV12 (luma plus
// interleaved chroma).
type Frame struct {
	Format driver.FourCC
	Size   image.Point

	Y       []byte
	YStride int

	// I420 chroma planes.
	U, V             []byte
	UStride, VStride int

	// NV12 interleaved chroma plane.
	UV       []byte
	UVStride int
}

// FrameFromYCbCr wraps a 4:2:0 stdlib image as an I420 frame. The planes
// are shared, not copied.
func FrameFromYCbCr(img *image.YCbCr) (*Frame, error) {
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return nil, fmt.Errorf("%w: subsample ratio %v, need 4:2:0", ErrUnsupported, img.SubsampleRatio)
	}
	return &Frame{
		Format:  driver.FourCCI420,
		Size:    img.Rect.Size(),
		Y:       img.Y,
		YStride: img.YStride,
		U:       img.Cb,
		V:       img.Cr,
		UStride: img.CStride,
		VStride: img.CStride,
	}, nil
}

// NV12Frame wraps raw NV12 planes as a frame. The planes are shared, not
// copied.
func NV12Frame(size image.Point, y []byte, yStride int, uv []byte, uvStride int) *Frame {
	return &Frame{
		Format:   driver.FourCCNV12,
		Size:     size,
		Y:        y,
		YStride:  yStride,
		UV:       uv,
		UVStride: uvStride,
	}
}

// UploadFrameToSurface copies a CPU frame into a surface through the
// driver's image path. The fast path maps the surface storage directly
// (derive); drivers that cannot derive fall back to a staging image and an
// explicit put.
//
// The surface must be NV12-backed and the frame dimensions even; the driver
// lock is released while the plane copies run, so other sessions on the
// display make progress during large uploads.
func (s *Session) UploadFrameToSurface(frame *Frame, surface Surface) error {
	if frame.Size.X%2 != 0 || frame.Size.Y%2 != 0 {
		return fmt.Errorf("%w: odd frame size %dx%d", ErrUnsupported, frame.Size.X, frame.Size.Y)
	}
	switch frame.Format {
	case driver.FourCCI420, driver.FourCCNV12:
	default:
		return fmt.Errorf("%w: frame format %s", ErrUnsupported, frame.Format)
	}

	s.enter()
	defer s.leave()
	d := s.display

	img, derived, err := s.acquireUploadImageLocked(surface)
	if err != nil {
		return err
	}
	defer func() {
		if derr := d.drv.DestroyImage(img.ID); derr != nil {
			reportError(OpDestroyImage, s.report, derr)
		}
	}()

	if img.Format.FourCC != driver.FourCCNV12 {
		return fmt.Errorf("%w: surface image is %s, need NV12", ErrUnsupported, img.Format.FourCC)
	}
	if int(img.Width) < frame.Size.X || int(img.Height) < frame.Size.Y {
		return fmt.Errorf("%w: frame %dx%d exceeds image %dx%d", ErrUnsupported,
			frame.Size.X, frame.Size.Y, img.Width, img.Height)
	}

	mapped, err := d.drv.MapBuffer(img.Buf)
	if err != nil {
		reportError(OpMapBuffer, s.report, err)
		return fmt.Errorf("hwaccel: map image buffer: %w", err)
	}

	// The copies touch no driver state; let other sessions in meanwhile.
	d.mu.Unlock()
	copyErr := copyFrameToNV12(frame, img, mapped)
	d.mu.Lock()

	if err := d.drv.UnmapBuffer(img.Buf); err != nil {
		reportError(OpUnmapBuffer, s.report, err)
		return fmt.Errorf("hwaccel: unmap image buffer: %w", err)
	}
	if copyErr != nil {
		return copyErr
	}

	if !derived {
		if err := d.drv.PutImage(surface.ID, img.ID, uint32(frame.Size.X), uint32(frame.Size.Y)); err != nil {
			reportError(OpPutImage, s.report, err)
			return fmt.Errorf("hwaccel: put image: %w", err)
		}
	}
	return nil
}

// acquireUploadImageLocked derives the surface image, falling back to a
// staging image when the driver declines to derive or derives a format the
// copy path cannot fill.
func (s *Session) acquireUploadImageLocked(surface Surface) (*driver.Image, bool, error) {
	d := s.display
	d.mu.AssertHeld()

	img, err := d.drv.DeriveImage(surface.ID)
	if err == nil && img.Format.FourCC == driver.FourCCNV12 {
		return img, true, nil
	}
	if err == nil {
		// Derived but unusable; switch to staging.
		if derr := d.drv.DestroyImage(img.ID); derr != nil {
			reportError(OpDestroyImage, s.report, derr)
		}
	} else if !errors.Is(err, driver.ErrOperationFailed) {
		reportError(OpDeriveImage, s.report, err)
		return nil, false, fmt.Errorf("hwaccel: derive image: %w", err)
	}

	format := driver.ImageFormat{FourCC: driver.FourCCNV12, BitsPerPixel: 12}
	img, err = d.drv.CreateImage(format, uint32(surface.Size.X), uint32(surface.Size.Y))
	if err != nil {
		reportError(OpCreateImage, s.report, err)
		return nil, false, fmt.Errorf("hwaccel: create image: %w", err)
	}
	return img, false, nil
}

// copyFrameToNV12 fills an NV12 image buffer from the frame, zeroing
// padding rows and columns so stale data never leaks into the coded area.
func copyFrameToNV12(frame *Frame, img *driver.Image, dst []byte) error {
	w, h := frame.Size.X, frame.Size.Y
	yPitch := int(img.Pitches[0])
	uvPitch := int(img.Pitches[1])
	yBase := int(img.Offsets[0])
	uvBase := int(img.Offsets[1])

	need := uvBase + int(img.Height)/2*uvPitch
	if need > len(dst) {
		return fmt.Errorf("hwaccel: image buffer %d bytes, layout needs %d", len(dst), need)
	}

	// Luma.
	for r := 0; r < h; r++ {
		row := dst[yBase+r*yPitch : yBase+r*yPitch+yPitch]
		copy(row, frame.Y[r*frame.YStride:r*frame.YStride+w])
		clear(row[w:])
	}
	for r := h; r < int(img.Height); r++ {
		clear(dst[yBase+r*yPitch : yBase+r*yPitch+yPitch])
	}

	// Chroma.
	ch := h / 2
	cw := w / 2
	for r := 0; r < ch; r++ {
		row := dst[uvBase+r*uvPitch : uvBase+r*uvPitch+uvPitch]
		switch frame.Format {
		case driver.FourCCNV12:
			copy(row, frame.UV[r*frame.UVStride:r*frame.UVStride+w])
		case driver.FourCCI420:
			u := frame.U[r*frame.UStride:]
			v := frame.V[r*frame.VStride:]
			for c := 0; c < cw; c++ {
				row[2*c] = u[c]
				row[2*c+1] = v[c]
			}
		}
		clear(row[w:])
	}
	for r := ch; r < int(img.Height)/2; r++ {
		clear(dst[uvBase+r*uvPitch : uvBase+r*uvPitch+uvPitch])
	}
	return nil
}
