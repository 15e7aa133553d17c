package hwaccel

import (
	"fmt"
	"image"

	"github.com/gogpu/hwaccel/driver"
)

// Session is one acceleration stream: a (mode, profile) pair bound to a
// driver configuration, with a lazily created execution context, a queue of
// pending command buffers, and optionally a protected session.
//
// A Session belongs to the goroutine that created it; operations from other
// goroutines panic unless WithoutAffinityCheck was given. All sessions on
// the same Display share its driver lock, so sessions on different
// goroutines are safe with respect to each other.
type Session struct {
	display    *Display
	mode       Mode
	profile    driver.Profile
	entrypoint driver.Entrypoint
	encryption EncryptionScheme

	config      driver.ConfigID
	context     driver.ContextID
	contextSize image.Point

	pending []driver.BufferID

	// vppBuffer is the reusable pipeline-parameter buffer for BlitSurface.
	vppBuffer driver.BufferID

	protected protectedState

	report   ReportErrorFunc
	affinity *affinityChecker

	strictResolution bool
	lowPower         bool

	closed bool
}

// NewSession creates a session for (mode, profile) on the display, creating
// the driver configuration up front. The display reference is held until
// Close.
//
// ModeDecodeProtected requires WithEncryption with a non-plain scheme.
func NewSession(d *Display, mode Mode, profile driver.Profile, opts ...Option) (*Session, error) {
	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if mode == ModeDecodeProtected && o.encryption == EncryptionNone {
		return nil, fmt.Errorf("%w: protected decode needs an encryption scheme", ErrUnsupported)
	}

	d, err := d.acquire()
	if err != nil {
		return nil, err
	}

	s := &Session{
		display:    d,
		mode:       mode,
		profile:    profile,
		encryption: o.encryption,
		config:     driver.InvalidConfig,
		context:    driver.InvalidContext,
		vppBuffer:  driver.InvalidBuffer,
		report:     o.report,
		protected: protectedState{
			config:  driver.InvalidConfig,
			session: driver.InvalidProtectedSession,
		},

		strictResolution: o.strictResolution,
		lowPower:         o.lowPower,
	}
	if o.affinityCheck {
		s.affinity = newAffinityChecker()
	}

	d.mu.Lock()
	err = s.initLocked()
	d.mu.Unlock()
	if err != nil {
		d.Release()
		return nil, err
	}

	Logger().Info("session created",
		"mode", mode.String(),
		"profile", int32(profile),
		"entrypoint", s.entrypoint.String())
	return s, nil
}

// initLocked resolves the entrypoint from the capability registry and
// creates the configuration.
func (s *Session) initLocked() error {
	d := s.display
	d.mu.AssertHeld()

	info, ok := d.lookupLocked(s.mode, s.profile, driver.EntrypointNone)
	if !ok {
		return fmt.Errorf("%w: %s profile %d", ErrUnsupported, s.mode, s.profile)
	}
	s.entrypoint = info.Entrypoint
	if s.mode.encode() && s.lowPower {
		if lp, ok := d.lookupLocked(s.mode, s.profile, driver.EntrypointEncSliceLP); ok {
			s.entrypoint = lp.Entrypoint
		} else {
			Logger().Warn("low-power encoding requested but unavailable",
				"profile", int32(s.profile))
		}
	}

	attribs := requiredAttribs(s.mode, s.profile)
	if s.mode == ModeDecodeProtected {
		// Narrow the probe-time attribute down to the declared scheme.
		for i := range attribs {
			if attribs[i].Type == driver.ConfigAttribEncryption {
				attribs[i].Value = encryptionAttribValue(s.encryption)
			}
		}
	}

	cfg, err := d.drv.CreateConfig(s.profile, s.entrypoint, attribs)
	if err != nil {
		reportError(OpCreateConfig, s.report, err)
		return fmt.Errorf("hwaccel: create config: %w", err)
	}
	s.config = cfg
	return nil
}

func encryptionAttribValue(scheme EncryptionScheme) uint32 {
	switch scheme {
	case EncryptionCenc:
		return encryptionSubsampleCTR
	case EncryptionCbcs:
		return encryptionSubsampleCBC
	}
	return 0
}

// Mode returns the session's mode.
func (s *Session) Mode() Mode { return s.mode }

// Profile returns the session's codec profile.
func (s *Session) Profile() driver.Profile { return s.profile }

// Entrypoint returns the entrypoint resolved at creation.
func (s *Session) Entrypoint() driver.Entrypoint { return s.entrypoint }

// Display returns the display the session runs on.
func (s *Session) Display() *Display { return s.display }

// MaxEncodeReferenceFrames reports how many reference frames the encoder
// entrypoint supports, or false when the driver does not say.
func (s *Session) MaxEncodeReferenceFrames() (uint32, bool) {
	return s.configAttrib(driver.ConfigAttribEncMaxRefFrames)
}

// SupportedPackedHeaders reports the bit set of packed header types the
// encoder entrypoint accepts, or false when the driver does not say.
func (s *Session) SupportedPackedHeaders() (uint32, bool) {
	return s.configAttrib(driver.ConfigAttribEncPackedHeaders)
}

func (s *Session) configAttrib(typ driver.ConfigAttribType) (uint32, bool) {
	s.enter()
	defer s.leave()

	attribs := []driver.ConfigAttrib{{Type: typ}}
	if err := s.display.drv.GetConfigAttributes(s.profile, s.entrypoint, attribs); err != nil {
		reportError(OpGetConfigAttributes, s.report, err)
		return 0, false
	}
	if attribs[0].Value == driver.AttribNotSupported {
		return 0, false
	}
	return attribs[0].Value, true
}

// enter is the common prologue of public session operations: affinity check,
// liveness check, driver lock.
func (s *Session) enter() {
	s.affinity.check()
	if s.closed {
		fatalf("session used after Close")
	}
	s.display.mu.Lock()
}

func (s *Session) leave() {
	s.display.mu.Unlock()
}

// Close tears the session down in dependency order: pending buffers, the
// video-processing parameter buffer, the protected session, the context,
// the configuration, then the display reference. Close is idempotent.
func (s *Session) Close() {
	s.affinity.check()
	if s.closed {
		return
	}
	s.closed = true

	s.display.mu.Lock()
	s.destroyPendingBuffersLocked()
	if s.vppBuffer != driver.InvalidBuffer {
		if err := s.display.drv.DestroyBuffer(s.vppBuffer); err != nil {
			reportError(OpDestroyBuffer, s.report, err)
		}
		s.vppBuffer = driver.InvalidBuffer
	}
	s.destroyProtectedSessionLocked()
	s.destroyContextLocked()
	if s.config != driver.InvalidConfig {
		if err := s.display.drv.DestroyConfig(s.config); err != nil {
			reportError(OpDestroyConfig, s.report, err)
		}
		s.config = driver.InvalidConfig
	}
	s.display.mu.Unlock()

	s.display.Release()
	Logger().Info("session closed", "mode", s.mode.String(), "profile", int32(s.profile))
}
