package hwaccel

import (
	"testing"

	"github.com/gogpu/hwaccel/driver"
	"github.com/gogpu/hwaccel/driver/fake"
)

// encodeFake returns a fake whose attribute surface admits the encode modes.
func encodeFake() *fake.Driver {
	f := fake.New()
	f.AttribValues[driver.ConfigAttribRateControl] = rateControlCBR | rateControlCQP
	return f
}

// protectedFake returns a fake whose attribute surface admits protected
// decode.
func protectedFake() *fake.Driver {
	f := fake.New()
	f.AttribValues[driver.ConfigAttribEncryption] = encryptionSubsampleCTR | encryptionSubsampleCBC
	return f
}

func acquired(t *testing.T, f *fake.Driver) *Display {
	t.Helper()
	d := NewDisplay(f)
	if _, err := d.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(d.Release)
	return d
}

func TestCapabilityProbe(t *testing.T) {
	d := acquired(t, fake.New())

	if !d.IsSupported(ModeDecode, driver.ProfileH264Main, driver.EntrypointNone) {
		t.Error("H264 Main decode unsupported")
	}
	if !d.IsSupported(ModeDecode, driver.ProfileVP9Profile0, driver.EntrypointNone) {
		t.Error("VP9 profile 0 decode unsupported")
	}
	if !d.IsSupported(ModeVideoProcess, driver.ProfileVideoProc, driver.EntrypointNone) {
		t.Error("video processing unsupported")
	}

	// The processing pseudo-profile pairs with the processing mode only.
	if d.IsSupported(ModeDecode, driver.ProfileVideoProc, driver.EntrypointNone) {
		t.Error("processing profile reported for decode")
	}
	// Rate control attribute missing: encode stays off the table.
	if d.IsSupported(ModeEncodeConstantBitrate, driver.ProfileH264Main, driver.EntrypointNone) {
		t.Error("encode supported without rate control attribute")
	}
}

func TestCapabilityProbeSkipsUnknownProfiles(t *testing.T) {
	f := fake.New()
	f.Profiles = append(f.Profiles, driver.ProfileVP9Profile1)
	f.Entrypoints[driver.ProfileVP9Profile1] = []driver.Entrypoint{driver.EntrypointVLD}
	d := acquired(t, f)

	if d.IsSupported(ModeDecode, driver.ProfileVP9Profile1, driver.EntrypointNone) {
		t.Error("unrecognized profile survived the probe")
	}
}

func TestCapabilityProbeRunsOnce(t *testing.T) {
	f := fake.New()
	d := acquired(t, f)

	d.IsSupported(ModeDecode, driver.ProfileH264Main, driver.EntrypointNone)
	d.IsSupported(ModeDecode, driver.ProfileVP9Profile0, driver.EntrypointNone)
	d.SupportedProfiles(ModeDecode)
	if f.Calls["QueryProfiles"] != 1 {
		t.Errorf("QueryProfiles called %d times, want 1", f.Calls["QueryProfiles"])
	}
}

func TestCapabilityMinResolutionClamp(t *testing.T) {
	f := encodeFake()
	f.Constraints.MinWidth, f.Constraints.MinHeight = 2, 2
	d := acquired(t, f)

	info, ok := d.ProfileCapabilities(ModeDecode, driver.ProfileH264Main, driver.EntrypointNone)
	if !ok {
		t.Fatal("decode capability missing")
	}
	if info.MinResolution != minResolution {
		t.Errorf("decode min %v, want %v", info.MinResolution, minResolution)
	}

	info, ok = d.ProfileCapabilities(ModeEncodeConstantBitrate, driver.ProfileH264Main, driver.EntrypointNone)
	if !ok {
		t.Fatal("encode capability missing")
	}
	if info.MinResolution != minEncodeResolution {
		t.Errorf("encode min %v, want %v", info.MinResolution, minEncodeResolution)
	}
}

func TestCapabilityDropsMissingMaxResolution(t *testing.T) {
	f := fake.New()
	f.Constraints.MaxWidth, f.Constraints.MaxHeight = 0, 0
	d := acquired(t, f)

	if d.IsSupported(ModeDecode, driver.ProfileH264Main, driver.EntrypointNone) {
		t.Error("combination without a maximum resolution survived")
	}
}

func TestCapabilityEntrypointWildcard(t *testing.T) {
	d := acquired(t, fake.New())

	if !d.IsSupported(ModeDecode, driver.ProfileH264Main, driver.EntrypointVLD) {
		t.Error("explicit entrypoint lookup failed")
	}
	if d.IsSupported(ModeDecode, driver.ProfileH264Main, driver.EntrypointEncSlice) {
		t.Error("decode matched an encode entrypoint")
	}
}

func TestNVIDIABlocksNonDecodeModes(t *testing.T) {
	f := encodeFake()
	f.Vendor = "Splitted-Desktop Systems VDPAU backend for VA-API"
	d := acquired(t, f)

	if !d.IsSupported(ModeDecode, driver.ProfileH264Main, driver.EntrypointNone) {
		t.Error("decode blocked on the VDPAU shim")
	}
	if d.IsSupported(ModeEncodeConstantBitrate, driver.ProfileH264Main, driver.EntrypointNone) {
		t.Error("encode allowed on the VDPAU shim")
	}
	if d.IsSupported(ModeVideoProcess, driver.ProfileVideoProc, driver.EntrypointNone) {
		t.Error("video processing allowed on the VDPAU shim")
	}
}

func TestSupportedProfilesFiltersByMode(t *testing.T) {
	d := acquired(t, fake.New())

	for _, info := range d.SupportedProfiles(ModeDecode) {
		if info.Mode != ModeDecode {
			t.Errorf("mode %v in decode listing", info.Mode)
		}
	}
	if len(d.SupportedProfiles(ModeDecode)) == 0 {
		t.Error("no decode profiles listed")
	}
	if len(d.SupportedProfiles(ModeEncodeConstantQuantization)) != 0 {
		t.Error("encode profiles listed without rate control support")
	}
}

func TestProtectedDecodeProbeAcceptsCTROnly(t *testing.T) {
	f := fake.New()
	f.AttribValues[driver.ConfigAttribEncryption] = encryptionSubsampleCTR
	d := acquired(t, f)

	if !d.IsSupported(ModeDecodeProtected, driver.ProfileH264Main, driver.EntrypointNone) {
		t.Error("protected decode unsupported on CTR-only hardware")
	}
}

func TestCapabilityCacheSurvivesRelease(t *testing.T) {
	f := fake.New()
	d := NewDisplay(f)
	if _, err := d.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !d.IsSupported(ModeDecode, driver.ProfileH264Main, driver.EntrypointNone) {
		t.Fatal("H264 Main decode unsupported")
	}
	d.Release()

	// The cached probe answers without a driver connection.
	if !d.IsSupported(ModeDecode, driver.ProfileH264Main, driver.EntrypointNone) {
		t.Error("capability cache lost on release")
	}
	if f.Calls["QueryProfiles"] != 1 {
		t.Errorf("%d probes, want 1", f.Calls["QueryProfiles"])
	}
}
