package hwaccel

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/gogpu/hwaccel/driver"
)

// CreateContext creates the session's execution context for the given coded
// size. Video-processing sessions ignore the size (their work is sized per
// submission); everyone else passes the stream's coded size.
//
// With WithStrictResolution the size is checked against the probed
// capability bounds first and rejected without a driver call.
//
// If a protected session was created before the context, it is attached
// here.
func (s *Session) CreateContext(size image.Point) error {
	s.enter()
	defer s.leave()
	return s.createContextLocked(size)
}

func (s *Session) createContextLocked(size image.Point) error {
	d := s.display
	d.mu.AssertHeld()
	if s.context != driver.InvalidContext {
		fatalf("context already created")
	}

	w, h := uint32(size.X), uint32(size.Y)
	if s.mode == ModeVideoProcess {
		// The processing context carries no intrinsic size.
		w, h = 0, 0
	} else if s.strictResolution {
		info, ok := d.lookupLocked(s.mode, s.profile, s.entrypoint)
		if !ok {
			return fmt.Errorf("%w: %s profile %d", ErrUnsupported, s.mode, s.profile)
		}
		if size.X < info.MinResolution.X || size.Y < info.MinResolution.Y ||
			size.X > info.MaxResolution.X || size.Y > info.MaxResolution.Y {
			return fmt.Errorf("%w: %dx%d outside [%dx%d, %dx%d]", ErrUnsupported,
				size.X, size.Y,
				info.MinResolution.X, info.MinResolution.Y,
				info.MaxResolution.X, info.MaxResolution.Y)
		}
	}

	ctx, err := d.drv.CreateContext(s.config, w, h, driver.ContextFlagProgressive)
	if err != nil {
		reportError(OpCreateContext, s.report, err)
		return fmt.Errorf("hwaccel: create context: %w", err)
	}
	s.context = ctx
	s.contextSize = size

	if s.mode.encode() {
		s.maybeSetLowQualityEncodingLocked()
	}

	if s.protected.state == protectedSessionCreated {
		if err := d.drv.AttachProtectedSession(s.context, s.protected.session); err != nil {
			reportError(OpAttachProtectedSession, s.report, err)
			s.destroyContextLocked()
			return fmt.Errorf("hwaccel: attach protected session: %w", err)
		}
		s.protected.state = protectedAttached
		s.protected.attached = true
	}
	return nil
}

// DestroyContext destroys the session's context, if any. The configuration
// and any protected session survive; a new context can be created after.
func (s *Session) DestroyContext() {
	s.enter()
	defer s.leave()
	s.destroyContextLocked()
}

func (s *Session) destroyContextLocked() {
	d := s.display
	d.mu.AssertHeld()
	if s.context == driver.InvalidContext {
		return
	}
	if s.protected.attached {
		if err := d.drv.DetachProtectedSession(s.context); err != nil {
			reportError(OpDetachProtectedSession, s.report, err)
		}
		s.protected.attached = false
		if s.protected.state == protectedAttached {
			s.protected.state = protectedSessionCreated
		}
	}
	if err := d.drv.DestroyContext(s.context); err != nil {
		reportError(OpDestroyContext, s.report, err)
	}
	s.context = driver.InvalidContext
	s.contextSize = image.Point{}
}

// HasContext reports whether the session currently has a context.
func (s *Session) HasContext() bool {
	s.affinity.check()
	return s.context != driver.InvalidContext
}

// Misc encode parameter buffer layout: type word followed by the parameter
// payload. Quality level is a single trailing word.
const (
	encMiscTypeQualityLevel uint32 = 14
	encMiscQualitySize             = 8
)

// maybeSetLowQualityEncodingLocked trades encode quality for speed when the
// driver exposes a quality range. The parameter buffer rides the pending
// queue so it renders inside the next picture transaction. Failure is logged
// and swallowed; encoding proceeds at default quality.
func (s *Session) maybeSetLowQualityEncodingLocked() {
	d := s.display
	d.mu.AssertHeld()

	attribs := []driver.ConfigAttrib{{Type: driver.ConfigAttribEncQualityRange}}
	if err := d.drv.GetConfigAttributes(s.profile, s.entrypoint, attribs); err != nil {
		reportError(OpGetConfigAttributes, s.report, err)
		return
	}
	quality := attribs[0].Value
	if quality == driver.AttribNotSupported || quality <= 1 {
		return
	}

	// Highest value in the range is the fastest (lowest quality) level.
	payload := make([]byte, encMiscQualitySize)
	binary.LittleEndian.PutUint32(payload[0:], encMiscTypeQualityLevel)
	binary.LittleEndian.PutUint32(payload[4:], quality)
	if err := s.submitOneLocked(BufferDescriptor{Type: driver.BufferEncMiscParameter, Data: payload}); err != nil {
		s.destroyPendingBuffersLocked()
		Logger().Warn("low quality encoding hint dropped", "err", err)
	}
}
