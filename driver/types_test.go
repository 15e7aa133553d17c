// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "testing"

func TestMakeFourCC(t *testing.T) {
	if got := MakeFourCC('N', 'V', '1', '2'); got != 0x3231564e {
		t.Errorf("NV12 packed as %#x, want 0x3231564e", uint32(got))
	}
}

func TestFourCCString(t *testing.T) {
	if got := FourCCNV12.String(); got != "NV12" {
		t.Errorf("NV12 string %q", got)
	}
	if got := FourCC(0x00000001).String(); got != "fourcc(0x00000001)" {
		t.Errorf("non-printable fourcc string %q", got)
	}
}

func TestPipelineCapsSupports(t *testing.T) {
	caps := PipelineCaps{RotationFlags: uint32(Rotation90 | Rotation180)}
	if !caps.Supports(RotationNone) {
		t.Error("RotationNone must always be supported")
	}
	if !caps.Supports(Rotation90) || !caps.Supports(Rotation180) {
		t.Error("advertised rotations not supported")
	}
	if caps.Supports(Rotation270) {
		t.Error("unadvertised rotation supported")
	}
}

func TestEntrypointString(t *testing.T) {
	if got := EntrypointVLD.String(); got != "vld" {
		t.Errorf("EntrypointVLD string %q", got)
	}
	if got := Entrypoint(99).String(); got != "entrypoint(99)" {
		t.Errorf("unknown entrypoint string %q", got)
	}
}
