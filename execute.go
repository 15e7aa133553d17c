package hwaccel

import (
	"fmt"

	"github.com/gogpu/hwaccel/driver"
)

// ExecuteAndDestroyPendingBuffers submits the pending queue against the
// target surface as one begin/render/end transaction and destroys the queue
// whether or not the submission succeeded.
//
// EndPicture returning does not mean the hardware is done; use SyncSurface
// to wait for completion.
func (s *Session) ExecuteAndDestroyPendingBuffers(target driver.SurfaceID) error {
	s.enter()
	defer s.leave()
	err := s.executeLocked(target, s.pending)
	s.destroyPendingBuffersLocked()
	return err
}

// executeLocked runs one submission transaction: BeginPicture must succeed
// before anything else; RenderPicture is skipped for an empty batch (legal,
// the transaction still brackets correctly); EndPicture finalizes.
func (s *Session) executeLocked(target driver.SurfaceID, buffers []driver.BufferID) error {
	d := s.display
	d.mu.AssertHeld()
	if s.context == driver.InvalidContext {
		fatalf("execute without a context")
	}

	Logger().Debug("execute", "target", uint32(target), "buffers", len(buffers))

	if err := d.drv.BeginPicture(s.context, target); err != nil {
		reportError(OpBeginPicture, s.report, err)
		return fmt.Errorf("hwaccel: begin picture: %w", err)
	}
	if len(buffers) > 0 {
		if err := d.drv.RenderPicture(s.context, buffers); err != nil {
			reportError(OpRenderPicture, s.report, err)
			return fmt.Errorf("hwaccel: render picture: %w", err)
		}
	}
	if err := d.drv.EndPicture(s.context); err != nil {
		reportError(OpEndPicture, s.report, err)
		return fmt.Errorf("hwaccel: end picture: %w", err)
	}
	return nil
}

// BufferCopy pairs an existing buffer with fresh payload bytes for
// MapAndCopyAndExecute.
type BufferCopy struct {
	ID   driver.BufferID
	Data []byte
}

// MapAndCopyAndExecute refreshes the contents of caller-owned buffers and
// submits them against the target surface in one lock acquisition. The
// buffers are not destroyed; they belong to the caller and are reused across
// frames.
func (s *Session) MapAndCopyAndExecute(target driver.SurfaceID, buffers []BufferCopy) error {
	s.enter()
	defer s.leave()
	d := s.display

	ids := make([]driver.BufferID, len(buffers))
	for i, bc := range buffers {
		ids[i] = bc.ID
		mapped, err := d.drv.MapBuffer(bc.ID)
		if err != nil {
			reportError(OpMapBuffer, s.report, err)
			return fmt.Errorf("hwaccel: map buffer %d: %w", bc.ID, err)
		}
		copy(mapped, bc.Data)
		if err := d.drv.UnmapBuffer(bc.ID); err != nil {
			reportError(OpUnmapBuffer, s.report, err)
			return fmt.Errorf("hwaccel: unmap buffer %d: %w", bc.ID, err)
		}
	}
	return s.executeLocked(target, ids)
}
