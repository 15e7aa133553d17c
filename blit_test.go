package hwaccel

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/hwaccel/driver"
	"github.com/gogpu/hwaccel/driver/fake"
)

func TestBlitSurface(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeVideoProcess, driver.ProfileVideoProc)

	src := Surface{ID: 100, Size: image.Pt(1920, 1080)}
	dst := Surface{ID: 101, Size: image.Pt(1280, 720)}
	if err := s.BlitSurface(src, dst, BlitParams{}); err != nil {
		t.Fatalf("blit: %v", err)
	}

	// Context and parameter buffer come into being on first use.
	if !s.HasContext() {
		t.Error("no processing context after blit")
	}
	params, err := driver.DecodeProcPipelineParams(f.BufferBytes(s.vppBuffer))
	if err != nil {
		t.Fatalf("decode pipeline params: %v", err)
	}
	if params.Source != src.ID {
		t.Errorf("source %d, want %d", params.Source, src.ID)
	}
	// Zero rectangles mean the full surfaces.
	if params.SourceRect != [4]uint32{0, 0, 1920, 1080} {
		t.Errorf("source rect %v", params.SourceRect)
	}
	if params.DestRect != [4]uint32{0, 0, 1280, 720} {
		t.Errorf("dest rect %v", params.DestRect)
	}
	if f.BeginTargets[len(f.BeginTargets)-1] != dst.ID {
		t.Errorf("blit targeted %v", f.BeginTargets)
	}

	// The parameter buffer is reused across blits.
	creates := f.Calls["CreateBuffer"]
	if err := s.BlitSurface(src, dst, BlitParams{
		SrcRect:  image.Rect(0, 0, 640, 360),
		Rotation: driver.Rotation90,
	}); err != nil {
		t.Fatalf("second blit: %v", err)
	}
	if f.Calls["CreateBuffer"] != creates {
		t.Error("parameter buffer reallocated")
	}
	params, err = driver.DecodeProcPipelineParams(f.BufferBytes(s.vppBuffer))
	if err != nil {
		t.Fatalf("decode pipeline params: %v", err)
	}
	if params.SourceRect != [4]uint32{0, 0, 640, 360} || params.Rotation != driver.Rotation90 {
		t.Errorf("params %+v", params)
	}
}

func TestBlitRotationUnsupported(t *testing.T) {
	f := fake.New()
	f.Caps.RotationFlags = 0
	s := newTestSession(t, f, ModeVideoProcess, driver.ProfileVideoProc)

	err := s.BlitSurface(
		Surface{ID: 1, Size: image.Pt(64, 64)},
		Surface{ID: 2, Size: image.Pt(64, 64)},
		BlitParams{Rotation: driver.Rotation180})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error %v, want ErrUnsupported", err)
	}
}

func TestBlitTransientProtectedAttach(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeVideoProcess, driver.ProfileVideoProc)

	err := s.BlitSurface(
		Surface{ID: 1, Size: image.Pt(64, 64)},
		Surface{ID: 2, Size: image.Pt(64, 64)},
		BlitParams{ProtectedSession: 7})
	if err != nil {
		t.Fatalf("blit: %v", err)
	}
	if len(f.Attached) != 1 || f.Attached[0] != 7 {
		t.Errorf("attached %v, want [7]", f.Attached)
	}
	// The attachment lasts for the one blit only.
	if f.Detached != 1 {
		t.Errorf("%d detaches, want 1", f.Detached)
	}
	if _, busy := f.AttachedTo(s.context); busy {
		t.Error("protected session still attached")
	}
}

func TestBlitOnNonProcessingSessionPanics(t *testing.T) {
	s := newTestSession(t, fake.New(), ModeDecode, driver.ProfileH264Main)
	mustPanic(t, func() {
		s.BlitSurface(Surface{ID: 1}, Surface{ID: 2}, BlitParams{})
	})
}
