package hwaccel

import (
	"fmt"
	"image"

	"github.com/gogpu/hwaccel/driver"
)

// BlitParams steer one video-processing blit.
type BlitParams struct {
	// SrcRect and DstRect select the regions to read and write. Zero
	// rectangles mean the full surface.
	SrcRect, DstRect image.Rectangle

	// Rotation is applied clockwise before scaling.
	Rotation driver.Rotation

	// ProtectedSession, when non-zero, is attached to the processing
	// context for this blit only and detached after submission.
	ProtectedSession driver.ProtectedSessionID
}

func rectToWire(r image.Rectangle) [4]uint32 {
	return [4]uint32{uint32(r.Min.X), uint32(r.Min.Y), uint32(r.Dx()), uint32(r.Dy())}
}

// BlitSurface scales, converts and optionally rotates src into dst through
// the video-processing pipeline. Only valid on a ModeVideoProcess session;
// the context and the pipeline-parameter buffer are created lazily on first
// use and reused for every following blit.
//
// The blit is submitted, not completed, when BlitSurface returns; sync on
// the destination surface before reading it.
func (s *Session) BlitSurface(src, dst Surface, params BlitParams) error {
	if s.mode != ModeVideoProcess {
		fatalf("blit on a %s session", s.mode)
	}

	s.enter()
	defer s.leave()
	d := s.display

	if s.context == driver.InvalidContext {
		if err := s.createContextLocked(image.Point{}); err != nil {
			return err
		}
	}

	if params.Rotation != driver.RotationNone {
		caps, err := d.drv.QueryPipelineCaps(s.context)
		if err != nil {
			reportError(OpQueryPipelineCaps, s.report, err)
			return fmt.Errorf("hwaccel: query pipeline caps: %w", err)
		}
		if !caps.Supports(params.Rotation) {
			return fmt.Errorf("%w: rotation %#x", ErrUnsupported, uint32(params.Rotation))
		}
	}

	if s.vppBuffer == driver.InvalidBuffer {
		buf, err := d.drv.CreateBuffer(s.context, driver.BufferProcPipelineParam, driver.ProcPipelineParamsSize)
		if err != nil {
			reportError(OpCreateBuffer, s.report, err)
			return fmt.Errorf("hwaccel: create pipeline parameter buffer: %w", err)
		}
		s.vppBuffer = buf
	}

	srcRect := params.SrcRect
	if srcRect.Empty() {
		srcRect = image.Rectangle{Max: src.Size}
	}
	dstRect := params.DstRect
	if dstRect.Empty() {
		dstRect = image.Rectangle{Max: dst.Size}
	}

	mapped, err := d.drv.MapBuffer(s.vppBuffer)
	if err != nil {
		reportError(OpMapBuffer, s.report, err)
		return fmt.Errorf("hwaccel: map pipeline parameter buffer: %w", err)
	}
	driver.EncodeProcPipelineParams(driver.ProcPipelineParams{
		Source:     src.ID,
		SourceRect: rectToWire(srcRect),
		DestRect:   rectToWire(dstRect),
		Rotation:   params.Rotation,
	}, mapped)
	if err := d.drv.UnmapBuffer(s.vppBuffer); err != nil {
		reportError(OpUnmapBuffer, s.report, err)
		return fmt.Errorf("hwaccel: unmap pipeline parameter buffer: %w", err)
	}

	if params.ProtectedSession != 0 && params.ProtectedSession != driver.InvalidProtectedSession {
		if err := d.drv.AttachProtectedSession(s.context, params.ProtectedSession); err != nil {
			reportError(OpAttachProtectedSession, s.report, err)
			return fmt.Errorf("hwaccel: attach protected session for blit: %w", err)
		}
		defer func() {
			if err := d.drv.DetachProtectedSession(s.context); err != nil {
				reportError(OpDetachProtectedSession, s.report, err)
			}
		}()
	}

	return s.executeLocked(dst.ID, []driver.BufferID{s.vppBuffer})
}
