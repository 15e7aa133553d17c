package hwaccel

import (
	"fmt"

	"github.com/gogpu/hwaccel/driver"
)

// hwIdentifierMax bounds the hardware identifier returned by the protected
// session handshake. The TEE reply is untrusted input; anything longer is a
// protocol violation.
const hwIdentifierMax = 64

// protectedUsageDefault is the default protected-content usage declared on
// the protected configuration.
const protectedUsageDefault uint32 = 0

type protectedPhase int

const (
	protectedNone protectedPhase = iota
	protectedConfigCreated
	protectedSessionCreated
	protectedAttached
	protectedDead
)

type protectedState struct {
	state   protectedPhase
	config  driver.ConfigID
	session driver.ProtectedSessionID

	// attached tracks the driver-side context attachment separately from
	// state: a session found dead by the liveness probe can still be
	// attached, and teardown must detach it either way.
	attached bool
}

// CreateProtectedSession establishes the protected (DRM) session: a
// protected configuration, the driver session, and the hardware-update
// handshake with the trusted execution environment. hwConfig is the
// platform's opaque configuration blob; the returned hardware identifier is
// at most 64 bytes.
//
// If the session's context already exists the protected session is attached
// to it now; otherwise attachment happens in CreateContext.
//
// Only valid on a ModeDecodeProtected session without an existing protected
// session.
func (s *Session) CreateProtectedSession(hwConfig []byte) ([]byte, error) {
	s.enter()
	defer s.leave()
	d := s.display

	if s.mode != ModeDecodeProtected {
		fatalf("protected session on a %s session", s.mode)
	}
	if s.protected.state != protectedNone {
		fatalf("protected session already exists")
	}

	attribs := []driver.ConfigAttrib{
		{Type: driver.ConfigAttribEncryption, Value: encryptionAttribValue(s.encryption)},
		{Type: driver.ConfigAttribProtectedUsage, Value: protectedUsageDefault},
	}
	cfg, err := d.drv.CreateConfig(driver.ProfileProtected, driver.EntrypointProtected, attribs)
	if err != nil {
		reportError(OpCreateConfig, s.report, err)
		return nil, fmt.Errorf("hwaccel: create protected config: %w", err)
	}
	s.protected = protectedState{state: protectedConfigCreated, config: cfg}

	sid, err := d.drv.CreateProtectedSession(cfg)
	if err != nil {
		reportError(OpCreateProtectedSession, s.report, err)
		s.destroyProtectedSessionLocked()
		return nil, fmt.Errorf("hwaccel: create protected session: %w", err)
	}
	s.protected.session = sid
	s.protected.state = protectedSessionCreated

	hwIdentifier, err := s.protectedHWUpdateLocked(hwConfig)
	if err != nil {
		s.destroyProtectedSessionLocked()
		return nil, err
	}

	if s.context != driver.InvalidContext {
		if err := d.drv.AttachProtectedSession(s.context, sid); err != nil {
			reportError(OpAttachProtectedSession, s.report, err)
			s.destroyProtectedSessionLocked()
			return nil, fmt.Errorf("hwaccel: attach protected session: %w", err)
		}
		s.protected.state = protectedAttached
		s.protected.attached = true
	}

	Logger().Info("protected session created", "identifier_bytes", len(hwIdentifier))
	return hwIdentifier, nil
}

// protectedHWUpdateLocked runs the hardware-update handshake and returns the
// hardware identifier the TEE reports.
func (s *Session) protectedHWUpdateLocked(hwConfig []byte) ([]byte, error) {
	d := s.display
	d.mu.AssertHeld()

	params := driver.ExecuteParams{
		FunctionID: driver.TEEFuncHWUpdate,
		Input:      hwConfig,
		OutputMax:  hwIdentifierMax,
	}
	out, err := s.protectedExecuteLocked(params)
	if err != nil {
		return nil, err
	}
	if len(out) > hwIdentifierMax {
		return nil, fmt.Errorf("hwaccel: hardware identifier of %d bytes exceeds %d", len(out), hwIdentifierMax)
	}
	return append([]byte(nil), out...), nil
}

// protectedExecuteLocked round-trips one TEE function call through a
// throwaway protected execute buffer.
func (s *Session) protectedExecuteLocked(params driver.ExecuteParams) ([]byte, error) {
	d := s.display
	d.mu.AssertHeld()

	encoded := driver.EncodeExecuteParams(params)
	buf, err := d.drv.CreateBuffer(driver.ContextID(s.protected.session), driver.BufferProtectedSession, len(encoded))
	if err != nil {
		reportError(OpCreateBuffer, s.report, err)
		return nil, fmt.Errorf("hwaccel: create protected execute buffer: %w", err)
	}
	defer func() {
		if err := d.drv.DestroyBuffer(buf); err != nil {
			reportError(OpDestroyBuffer, s.report, err)
		}
	}()

	mapped, err := d.drv.MapBuffer(buf)
	if err != nil {
		reportError(OpMapBuffer, s.report, err)
		return nil, fmt.Errorf("hwaccel: map protected execute buffer: %w", err)
	}
	copy(mapped, encoded)
	if err := d.drv.UnmapBuffer(buf); err != nil {
		reportError(OpUnmapBuffer, s.report, err)
		return nil, fmt.Errorf("hwaccel: unmap protected execute buffer: %w", err)
	}

	if err := d.drv.ProtectedExecute(s.protected.session, buf); err != nil {
		reportError(OpProtectedExecute, s.report, err)
		return nil, fmt.Errorf("hwaccel: protected execute: %w", err)
	}

	mapped, err = d.drv.MapBuffer(buf)
	if err != nil {
		reportError(OpMapBuffer, s.report, err)
		return nil, fmt.Errorf("hwaccel: map protected execute buffer: %w", err)
	}
	out, oerr := driver.ExecuteOutput(mapped)
	if oerr == nil {
		out = append([]byte(nil), out...)
	}
	if err := d.drv.UnmapBuffer(buf); err != nil {
		reportError(OpUnmapBuffer, s.report, err)
		return nil, fmt.Errorf("hwaccel: unmap protected execute buffer: %w", err)
	}
	if oerr != nil {
		return nil, fmt.Errorf("hwaccel: protected execute reply: %w", oerr)
	}
	return out, nil
}

// ProtectedSessionDead probes whether the protected session is still alive
// in the TEE. Failure to even create the probe buffer counts as dead; a
// closed session fails allocation the same way a reset one does. A dead
// session is absorbing; tear the whole session down and start over.
//
// Returns false when the session has no protected session.
func (s *Session) ProtectedSessionDead() bool {
	s.enter()
	defer s.leave()

	switch s.protected.state {
	case protectedNone, protectedConfigCreated:
		return false
	case protectedDead:
		return true
	}

	d := s.display
	params := driver.ExecuteParams{
		FunctionID: driver.TEEFuncIsSessionAlive,
		OutputMax:  4,
	}
	encoded := driver.EncodeExecuteParams(params)
	buf, err := d.drv.CreateBuffer(driver.ContextID(s.protected.session), driver.BufferProtectedSession, len(encoded))
	if err != nil {
		// Allocation against a torn-down session fails; that is the
		// dead signal, not an error to report.
		s.protected.state = protectedDead
		return true
	}
	defer func() {
		if err := d.drv.DestroyBuffer(buf); err != nil {
			reportError(OpDestroyBuffer, s.report, err)
		}
	}()

	alive := false
	if mapped, err := d.drv.MapBuffer(buf); err == nil {
		copy(mapped, encoded)
		if err := d.drv.UnmapBuffer(buf); err == nil {
			if err := d.drv.ProtectedExecute(s.protected.session, buf); err == nil {
				if mapped, err := d.drv.MapBuffer(buf); err == nil {
					if out, err := driver.ExecuteOutput(mapped); err == nil && len(out) > 0 {
						alive = out[0] == 1
					}
					if err := d.drv.UnmapBuffer(buf); err != nil {
						reportError(OpUnmapBuffer, s.report, err)
					}
				}
			}
		}
	}
	if !alive {
		s.protected.state = protectedDead
	}
	return !alive
}

// ProtectedSessionID returns the driver id of the protected session, or
// driver.InvalidProtectedSession when none exists.
func (s *Session) ProtectedSessionID() driver.ProtectedSessionID {
	s.affinity.check()
	switch s.protected.state {
	case protectedSessionCreated, protectedAttached:
		return s.protected.session
	}
	return driver.InvalidProtectedSession
}

// DestroyProtectedSession tears the protected session down in reverse
// creation order: detach, session, configuration. No-op when none exists.
func (s *Session) DestroyProtectedSession() {
	s.enter()
	defer s.leave()
	s.destroyProtectedSessionLocked()
}

func (s *Session) destroyProtectedSessionLocked() {
	d := s.display
	d.mu.AssertHeld()
	if s.protected.state == protectedNone {
		return
	}

	if s.protected.attached && s.context != driver.InvalidContext {
		if err := d.drv.DetachProtectedSession(s.context); err != nil {
			reportError(OpDetachProtectedSession, s.report, err)
		}
	}
	if s.protected.session != driver.InvalidProtectedSession && s.protected.state != protectedConfigCreated {
		if err := d.drv.DestroyProtectedSession(s.protected.session); err != nil {
			reportError(OpDestroyProtectedSession, s.report, err)
		}
	}
	if s.protected.config != driver.InvalidConfig {
		if err := d.drv.DestroyConfig(s.protected.config); err != nil {
			reportError(OpDestroyConfig, s.report, err)
		}
	}
	s.protected = protectedState{
		config:  driver.InvalidConfig,
		session: driver.InvalidProtectedSession,
	}
}
