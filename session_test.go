package hwaccel

import (
	"errors"
	"testing"

	"github.com/gogpu/hwaccel/driver"
	"github.com/gogpu/hwaccel/driver/fake"
)

// newTestSession creates a session on a fresh display over f and arranges for
// teardown.
func newTestSession(t *testing.T, f *fake.Driver, mode Mode, profile driver.Profile, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(NewDisplay(f), mode, profile, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSessionLifecycle(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	if s.Mode() != ModeDecode || s.Profile() != driver.ProfileH264Main {
		t.Errorf("session is (%v, %d)", s.Mode(), s.Profile())
	}
	if s.Entrypoint() != driver.EntrypointVLD {
		t.Errorf("entrypoint %v, want vld", s.Entrypoint())
	}

	s.Close()
	s.Close() // idempotent

	surfaces, contexts, configs, buffers, sessions := f.Live()
	if surfaces+contexts+configs+buffers+sessions != 0 {
		t.Errorf("leaked resources after close: %d/%d/%d/%d/%d",
			surfaces, contexts, configs, buffers, sessions)
	}
	if f.Calls["Close"] != 1 {
		t.Errorf("driver Close called %d times, want 1", f.Calls["Close"])
	}
}

func TestSessionUnsupportedProfile(t *testing.T) {
	f := fake.New()
	_, err := NewSession(NewDisplay(f), ModeDecode, driver.ProfileHEVCMain)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error %v, want ErrUnsupported", err)
	}
	// The display reference taken for the attempt must be given back.
	if f.Calls["Open"] != 1 || f.Calls["Close"] != 1 {
		t.Errorf("Open/Close called %d/%d times, want 1/1", f.Calls["Open"], f.Calls["Close"])
	}
}

func TestProtectedSessionRequiresEncryption(t *testing.T) {
	f := protectedFake()
	_, err := NewSession(NewDisplay(f), ModeDecodeProtected, driver.ProfileH264Main)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error %v, want ErrUnsupported", err)
	}
	if f.Calls["Open"] != 0 {
		t.Error("driver opened for a rejected session")
	}

	s := newTestSession(t, f, ModeDecodeProtected, driver.ProfileH264Main,
		WithEncryption(EncryptionCenc))
	if s.Mode() != ModeDecodeProtected {
		t.Errorf("mode %v", s.Mode())
	}
}

func TestLowPowerEncodingFallback(t *testing.T) {
	// Only the full-power slice entrypoint exists: the preference is
	// dropped with a warning, not an error.
	f := encodeFake()
	s := newTestSession(t, f, ModeEncodeConstantBitrate, driver.ProfileH264Main,
		WithLowPowerEncoding())
	if s.Entrypoint() != driver.EntrypointEncSlice {
		t.Errorf("entrypoint %v, want enc-slice", s.Entrypoint())
	}
}

func TestLowPowerEncodingPreferred(t *testing.T) {
	f := encodeFake()
	f.Entrypoints[driver.ProfileH264Main] = []driver.Entrypoint{
		driver.EntrypointVLD, driver.EntrypointEncSlice, driver.EntrypointEncSliceLP,
	}
	s := newTestSession(t, f, ModeEncodeConstantBitrate, driver.ProfileH264Main,
		WithLowPowerEncoding())
	if s.Entrypoint() != driver.EntrypointEncSliceLP {
		t.Errorf("entrypoint %v, want enc-slice-lp", s.Entrypoint())
	}
}

func TestSessionUseAfterClosePanics(t *testing.T) {
	f := fake.New()
	s, err := NewSession(NewDisplay(f), ModeDecode, driver.ProfileH264Main)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s.Close()
	mustPanic(t, func() { s.SubmitBuffer(driver.BufferSliceData, []byte{1}) })
}

func TestEncodeAttributeQueries(t *testing.T) {
	f := encodeFake()
	f.AttribValues[driver.ConfigAttribEncMaxRefFrames] = 4
	s := newTestSession(t, f, ModeEncodeConstantBitrate, driver.ProfileH264Main)

	if n, ok := s.MaxEncodeReferenceFrames(); !ok || n != 4 {
		t.Errorf("max reference frames (%d, %v), want (4, true)", n, ok)
	}
	// The driver never filled in packed headers for this profile.
	if _, ok := s.SupportedPackedHeaders(); ok {
		t.Error("packed headers reported without driver support")
	}
}
