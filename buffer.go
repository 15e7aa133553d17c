package hwaccel

import (
	"fmt"

	"github.com/gogpu/hwaccel/driver"
)

// BufferDescriptor is one command buffer to submit: a type and its payload.
// A nil Data is an injected failure (tests use it to exercise the rollback
// path); an empty non-nil payload is legal.
type BufferDescriptor struct {
	Type driver.BufferType
	Data []byte
}

// SubmitBuffer queues one command buffer on the session. On any failure the
// entire pending queue is destroyed, not just this buffer: a batch with a
// hole in it must never reach Execute.
func (s *Session) SubmitBuffer(typ driver.BufferType, data []byte) error {
	s.enter()
	defer s.leave()
	return s.submitBuffersLocked([]BufferDescriptor{{Type: typ, Data: data}})
}

// SubmitBuffers queues several command buffers under one lock acquisition.
// Same failure contract as SubmitBuffer: the first failure destroys the
// whole pending queue, including buffers queued by earlier calls.
func (s *Session) SubmitBuffers(descs []BufferDescriptor) error {
	s.enter()
	defer s.leave()
	return s.submitBuffersLocked(descs)
}

func (s *Session) submitBuffersLocked(descs []BufferDescriptor) error {
	d := s.display
	d.mu.AssertHeld()

	for _, desc := range descs {
		if err := s.submitOneLocked(desc); err != nil {
			s.destroyPendingBuffersLocked()
			return err
		}
	}
	return nil
}

func (s *Session) submitOneLocked(desc BufferDescriptor) error {
	d := s.display
	if desc.Data == nil {
		return fmt.Errorf("hwaccel: submit type %d: nil payload", desc.Type)
	}

	id, err := d.drv.CreateBuffer(s.context, desc.Type, len(desc.Data))
	if err != nil {
		reportError(OpCreateBuffer, s.report, err)
		return fmt.Errorf("hwaccel: create buffer type %d: %w", desc.Type, err)
	}
	// From here the buffer is pending: failures below destroy it with the
	// rest of the queue.
	s.pending = append(s.pending, id)

	mapped, err := d.drv.MapBuffer(id)
	if err != nil {
		reportError(OpMapBuffer, s.report, err)
		return fmt.Errorf("hwaccel: map buffer: %w", err)
	}
	copy(mapped, desc.Data)
	if err := d.drv.UnmapBuffer(id); err != nil {
		reportError(OpUnmapBuffer, s.report, err)
		return fmt.Errorf("hwaccel: unmap buffer: %w", err)
	}
	return nil
}

// DestroyPendingBuffers destroys every queued-but-unexecuted buffer.
func (s *Session) DestroyPendingBuffers() {
	s.enter()
	defer s.leave()
	s.destroyPendingBuffersLocked()
}

func (s *Session) destroyPendingBuffersLocked() {
	d := s.display
	d.mu.AssertHeld()
	for _, id := range s.pending {
		if err := d.drv.DestroyBuffer(id); err != nil {
			reportError(OpDestroyBuffer, s.report, err)
		}
	}
	s.pending = s.pending[:0]
}

// PendingBuffers reports how many buffers are queued for the next Execute.
func (s *Session) PendingBuffers() int {
	s.affinity.check()
	return len(s.pending)
}

// Buffer is an owned driver buffer, independent of the pending queue. Encode
// output and protected execute payloads live in these.
type Buffer struct {
	id      driver.BufferID
	typ     driver.BufferType
	size    int
	session *Session
	closed  bool
}

// CreateBuffer allocates an owned buffer of the given type and size against
// the session's context. Protected execute buffers are allocated against the
// protected session instead; one must exist first.
func (s *Session) CreateBuffer(typ driver.BufferType, size int) (*Buffer, error) {
	s.enter()
	defer s.leave()
	d := s.display

	target := s.context
	if typ == driver.BufferProtectedSession {
		if s.protected.state != protectedSessionCreated && s.protected.state != protectedAttached {
			fatalf("protected execute buffer without a protected session")
		}
		target = driver.ContextID(s.protected.session)
	}

	id, err := d.drv.CreateBuffer(target, typ, size)
	if err != nil {
		reportError(OpCreateBuffer, s.report, err)
		return nil, fmt.Errorf("hwaccel: create buffer type %d: %w", typ, err)
	}
	return &Buffer{id: id, typ: typ, size: size, session: s}, nil
}

// ID returns the driver buffer id.
func (b *Buffer) ID() driver.BufferID { return b.id }

// Type returns the buffer's type.
func (b *Buffer) Type() driver.BufferType { return b.typ }

// Size returns the buffer's byte size.
func (b *Buffer) Size() int { return b.size }

// Write copies data into the buffer through a map/unmap cycle.
func (b *Buffer) Write(data []byte) error {
	s := b.session
	s.enter()
	defer s.leave()
	if len(data) > b.size {
		return fmt.Errorf("%w: %d bytes into %d-byte buffer", ErrBufferTooSmall, len(data), b.size)
	}

	mapped, err := s.display.drv.MapBuffer(b.id)
	if err != nil {
		reportError(OpMapBuffer, s.report, err)
		return fmt.Errorf("hwaccel: map buffer: %w", err)
	}
	copy(mapped, data)
	if err := s.display.drv.UnmapBuffer(b.id); err != nil {
		reportError(OpUnmapBuffer, s.report, err)
		return fmt.Errorf("hwaccel: unmap buffer: %w", err)
	}
	return nil
}

// Close destroys the buffer. Idempotent.
func (b *Buffer) Close() {
	if b == nil || b.closed {
		return
	}
	b.closed = true
	s := b.session
	s.enter()
	defer s.leave()
	if err := s.display.drv.DestroyBuffer(b.id); err != nil {
		reportError(OpDestroyBuffer, s.report, err)
	}
}

// EncodedChunkSize syncs the surface the encoder wrote from and returns the
// total byte size of the coded data in the buffer.
func (s *Session) EncodedChunkSize(buf driver.BufferID, syncSurface driver.SurfaceID) (int, error) {
	s.enter()
	defer s.leave()
	d := s.display

	if err := s.syncSurfaceLocked(syncSurface); err != nil {
		return 0, err
	}
	segments, err := d.drv.MapCodedBuffer(buf)
	if err != nil {
		reportError(OpMapBuffer, s.report, err)
		return 0, fmt.Errorf("hwaccel: map coded buffer: %w", err)
	}
	total := 0
	for _, seg := range segments {
		total += len(seg.Data)
	}
	if err := d.drv.UnmapBuffer(buf); err != nil {
		reportError(OpUnmapBuffer, s.report, err)
		return 0, fmt.Errorf("hwaccel: unmap coded buffer: %w", err)
	}
	return total, nil
}

// DownloadFromBuffer copies the coded data chain out of an encode-output
// buffer into dst and returns the number of bytes written. A segment that
// does not fit in the remaining capacity fails with ErrBufferTooSmall.
//
// On Intel drivers mapping the buffer is itself a full sync, so the explicit
// surface sync is skipped there.
func (s *Session) DownloadFromBuffer(buf driver.BufferID, syncSurface driver.SurfaceID, dst []byte) (int, error) {
	s.enter()
	defer s.leave()
	d := s.display

	intel := d.impl == ImplementationIntelI965 || d.impl == ImplementationIntelIHD
	if !intel {
		if err := s.syncSurfaceLocked(syncSurface); err != nil {
			return 0, err
		}
	}

	segments, err := d.drv.MapCodedBuffer(buf)
	if err != nil {
		reportError(OpMapBuffer, s.report, err)
		return 0, fmt.Errorf("hwaccel: map coded buffer: %w", err)
	}
	written := 0
	for _, seg := range segments {
		if len(seg.Data) > len(dst)-written {
			if err := d.drv.UnmapBuffer(buf); err != nil {
				reportError(OpUnmapBuffer, s.report, err)
			}
			return written, fmt.Errorf("%w: segment of %d bytes, %d remaining",
				ErrBufferTooSmall, len(seg.Data), len(dst)-written)
		}
		copy(dst[written:], seg.Data)
		written += len(seg.Data)
	}
	if err := d.drv.UnmapBuffer(buf); err != nil {
		reportError(OpUnmapBuffer, s.report, err)
		return written, fmt.Errorf("hwaccel: unmap coded buffer: %w", err)
	}
	return written, nil
}
