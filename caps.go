package hwaccel

import (
	"image"

	"github.com/gogpu/hwaccel/driver"
)

// Rate-control and encryption attribute values used during probing and
// config creation.
const (
	rateControlCBR uint32 = 0x00000002
	rateControlCQP uint32 = 0x00000010

	encryptionFullsampleCTR uint32 = 0x00000001
	encryptionFullsampleCBC uint32 = 0x00000002
	encryptionSubsampleCTR  uint32 = 0x00000004
	encryptionSubsampleCBC  uint32 = 0x00000008
)

// Resolution floors. Drivers under-report minimums; 16x16 is the smallest
// coded size any codec here produces. Hardware encoders stall below QVGA,
// so encode minimums are raised past it.
var (
	minResolution       = image.Point{X: 16, Y: 16}
	minEncodeResolution = image.Point{X: 320 + 1, Y: 240 + 1}
)

// ProfileInfo describes one supported (mode, profile, entrypoint)
// combination and its surface limits.
type ProfileInfo struct {
	Mode       Mode
	Profile    driver.Profile
	Entrypoint driver.Entrypoint

	MinResolution image.Point
	MaxResolution image.Point

	// PixelFormats lists the allocatable surface fourccs, when the driver
	// reports them.
	PixelFormats []driver.FourCC

	// InternalFormats is the bit set of render-target formats the
	// configuration can decode into or encode from.
	InternalFormats driver.RTFormat
}

// knownProfiles is the closed set of profiles the session layer understands.
// Drivers report more; anything else is dropped during the probe.
var knownProfiles = map[driver.Profile]bool{
	driver.ProfileH264Baseline:            true,
	driver.ProfileH264ConstrainedBaseline: true,
	driver.ProfileH264Main:                true,
	driver.ProfileH264High:                true,
	driver.ProfileJPEGBaseline:            true,
	driver.ProfileVP8Version0_3:           true,
	driver.ProfileVP9Profile0:             true,
	driver.ProfileVP9Profile2:             true,
	driver.ProfileHEVCMain:                true,
	driver.ProfileHEVCMain10:              true,
	driver.ProfileAV1Profile0:             true,
	driver.ProfileVideoProc:               true,
}

// tenBitProfiles need a 10bpp render-target format in their configs.
var tenBitProfiles = map[driver.Profile]bool{
	driver.ProfileVP9Profile2: true,
	driver.ProfileHEVCMain10:  true,
}

// allowedEntrypoints filters driver-reported entrypoints down to the ones a
// mode may use, preserving the driver's order.
func allowedEntrypoints(mode Mode, reported []driver.Entrypoint) []driver.Entrypoint {
	var allowed []driver.Entrypoint
	for _, ep := range reported {
		switch mode {
		case ModeDecode:
			if ep == driver.EntrypointVLD {
				allowed = append(allowed, ep)
			}
		case ModeDecodeProtected:
			if ep == driver.EntrypointVLD || ep == driver.EntrypointProtected {
				allowed = append(allowed, ep)
			}
		case ModeEncodeConstantBitrate, ModeEncodeConstantQuantization:
			if ep == driver.EntrypointEncSlice || ep == driver.EntrypointEncPicture ||
				ep == driver.EntrypointEncSliceLP {
				allowed = append(allowed, ep)
			}
		case ModeVideoProcess:
			if ep == driver.EntrypointVideoProc {
				allowed = append(allowed, ep)
			}
		}
	}
	return allowed
}

// profileBlocked rejects combinations known to misbehave on a vendor even
// though the driver advertises them.
func profileBlocked(impl Implementation, mode Mode, profile driver.Profile) bool {
	// The VDPAU shim only translates the decode paths.
	if impl == ImplementationNVIDIAVDPAU && !mode.decode() {
		return true
	}
	return false
}

// requiredAttribs returns the configuration attributes a (mode, profile)
// pair must support.
func requiredAttribs(mode Mode, profile driver.Profile) []driver.ConfigAttrib {
	rt := driver.RTFormatYUV420
	if tenBitProfiles[profile] {
		rt = driver.RTFormatYUV420_10
	}
	attribs := []driver.ConfigAttrib{{Type: driver.ConfigAttribRTFormat, Value: uint32(rt)}}
	switch mode {
	case ModeEncodeConstantBitrate:
		attribs = append(attribs, driver.ConfigAttrib{Type: driver.ConfigAttribRateControl, Value: rateControlCBR})
	case ModeEncodeConstantQuantization:
		attribs = append(attribs, driver.ConfigAttrib{Type: driver.ConfigAttribRateControl, Value: rateControlCQP})
	case ModeDecodeProtected:
		// Probe with CTR only; CBC-only hardware is not a thing, and the
		// config narrows to the declared scheme at creation time.
		attribs = append(attribs, driver.ConfigAttrib{
			Type:  driver.ConfigAttribEncryption,
			Value: encryptionSubsampleCTR,
		})
	}
	return attribs
}

// attribsSupportedLocked checks that the driver supports every required
// attribute value for (profile, entrypoint).
func (d *Display) attribsSupportedLocked(profile driver.Profile, ep driver.Entrypoint, required []driver.ConfigAttrib) bool {
	d.mu.AssertHeld()
	query := make([]driver.ConfigAttrib, len(required))
	for i, a := range required {
		query[i] = driver.ConfigAttrib{Type: a.Type}
	}
	if err := d.drv.GetConfigAttributes(profile, ep, query); err != nil {
		reportError(OpGetConfigAttributes, nil, err)
		return false
	}
	for i, got := range query {
		if got.Value == driver.AttribNotSupported {
			return false
		}
		if got.Value&required[i].Value != required[i].Value {
			return false
		}
	}
	return true
}

// fillProfileInfoLocked creates a throwaway configuration to learn the
// surface limits of (mode, profile, entrypoint). A missing maximum
// resolution fails the combination.
func (d *Display) fillProfileInfoLocked(mode Mode, profile driver.Profile, ep driver.Entrypoint, attribs []driver.ConfigAttrib) (ProfileInfo, bool) {
	d.mu.AssertHeld()

	cfg, err := d.drv.CreateConfig(profile, ep, attribs)
	if err != nil {
		reportError(OpCreateConfig, nil, err)
		return ProfileInfo{}, false
	}
	defer func() {
		if err := d.drv.DestroyConfig(cfg); err != nil {
			reportError(OpDestroyConfig, nil, err)
		}
	}()

	sc, err := d.drv.QuerySurfaceAttributes(cfg)
	if err != nil {
		reportError(OpQuerySurfaceAttributes, nil, err)
		return ProfileInfo{}, false
	}
	if sc.MaxWidth == 0 || sc.MaxHeight == 0 {
		Logger().Warn("driver reports no maximum resolution, dropping combination",
			"profile", int32(profile), "entrypoint", ep.String(), "mode", mode.String())
		return ProfileInfo{}, false
	}

	info := ProfileInfo{
		Mode:          mode,
		Profile:       profile,
		Entrypoint:    ep,
		MinResolution: image.Point{X: int(sc.MinWidth), Y: int(sc.MinHeight)},
		MaxResolution: image.Point{X: int(sc.MaxWidth), Y: int(sc.MaxHeight)},
		PixelFormats:  append([]driver.FourCC(nil), sc.PixelFormats...),
	}
	floor := minResolution
	if mode.encode() {
		floor = minEncodeResolution
	}
	if info.MinResolution.X < floor.X {
		info.MinResolution.X = floor.X
	}
	if info.MinResolution.Y < floor.Y {
		info.MinResolution.Y = floor.Y
	}

	rt := []driver.ConfigAttrib{{Type: driver.ConfigAttribRTFormat}}
	if err := d.drv.GetConfigAttributes(profile, ep, rt); err == nil &&
		rt[0].Value != driver.AttribNotSupported {
		info.InternalFormats = driver.RTFormat(rt[0].Value)
	}
	return info, true
}

// capabilitiesLocked probes the driver once and returns the cached result on
// later calls. The cache survives display close/reopen cycles; the
// capability surface of a device does not change while the process runs.
func (d *Display) capabilitiesLocked() []ProfileInfo {
	d.mu.AssertHeld()
	if d.capsProbed {
		return d.caps
	}
	d.requireOpenLocked()
	d.capsProbed = true

	profiles, err := d.drv.QueryProfiles()
	if err != nil {
		reportError(OpQueryProfiles, nil, err)
		return nil
	}
	for _, p := range profiles {
		if !knownProfiles[p] {
			Logger().Debug("skipping unrecognized profile", "profile", int32(p))
			continue
		}
		eps, err := d.drv.QueryEntrypoints(p)
		if err != nil {
			reportError(OpQueryEntrypoints, nil, err)
			continue
		}
		for mode := Mode(0); mode < modeCount; mode++ {
			if profileBlocked(d.impl, mode, p) {
				continue
			}
			if (p == driver.ProfileVideoProc) != (mode == ModeVideoProcess) {
				continue
			}
			for _, ep := range allowedEntrypoints(mode, eps) {
				attribs := requiredAttribs(mode, p)
				if !d.attribsSupportedLocked(p, ep, attribs) {
					continue
				}
				if info, ok := d.fillProfileInfoLocked(mode, p, ep, attribs); ok {
					d.caps = append(d.caps, info)
				}
			}
		}
	}
	Logger().Info("capability probe complete", "combinations", len(d.caps))
	return d.caps
}

// lookupLocked finds the first entry matching (mode, profile, entrypoint).
// EntrypointNone matches any entrypoint.
func (d *Display) lookupLocked(mode Mode, profile driver.Profile, ep driver.Entrypoint) (ProfileInfo, bool) {
	for _, info := range d.capabilitiesLocked() {
		if info.Mode != mode || info.Profile != profile {
			continue
		}
		if ep == driver.EntrypointNone || info.Entrypoint == ep {
			return info, true
		}
	}
	return ProfileInfo{}, false
}

// IsSupported reports whether the device supports (mode, profile) through
// the given entrypoint. Pass driver.EntrypointNone to accept any entrypoint.
func (d *Display) IsSupported(mode Mode, profile driver.Profile, ep driver.Entrypoint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.lookupLocked(mode, profile, ep)
	return ok
}

// ProfileCapabilities returns the capability entry for (mode, profile,
// entrypoint), with entrypoint wildcarding as in IsSupported.
func (d *Display) ProfileCapabilities(mode Mode, profile driver.Profile, ep driver.Entrypoint) (ProfileInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookupLocked(mode, profile, ep)
}

// SupportedProfiles returns every capability entry for a mode, in probe
// order. The slice is shared; callers must not modify it.
func (d *Display) SupportedProfiles(mode Mode) []ProfileInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ProfileInfo
	for _, info := range d.capabilitiesLocked() {
		if info.Mode == mode {
			out = append(out, info)
		}
	}
	return out
}
