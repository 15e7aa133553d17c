// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"image"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/hwaccel/driver"
)

func TestPlaneLayoutsNV12(t *testing.T) {
	layouts, ok := PlaneLayouts(driver.FourCCNV12, image.Pt(1920, 1080))
	if !ok {
		t.Fatal("NV12 does not bind")
	}
	if len(layouts) != 2 {
		t.Fatalf("%d planes, want 2", len(layouts))
	}
	if layouts[0].Format != gputypes.TextureFormatR8Unorm || layouts[0].Size != image.Pt(1920, 1080) {
		t.Errorf("luma plane %+v", layouts[0])
	}
	// Interleaved chroma: full byte width, half height.
	if layouts[1].Size != image.Pt(1920, 540) {
		t.Errorf("chroma plane size %v", layouts[1].Size)
	}
}

func TestPlaneLayoutsTriPlanar(t *testing.T) {
	for _, fourcc := range []driver.FourCC{driver.FourCCI420, driver.FourCCYV12} {
		layouts, ok := PlaneLayouts(fourcc, image.Pt(640, 480))
		if !ok || len(layouts) != 3 {
			t.Fatalf("%v: %d planes, want 3", fourcc, len(layouts))
		}
		if layouts[1].Size != image.Pt(320, 240) || layouts[2].Size != image.Pt(320, 240) {
			t.Errorf("%v chroma sizes %v/%v", fourcc, layouts[1].Size, layouts[2].Size)
		}
	}
}

func TestPlaneLayoutsRGB(t *testing.T) {
	layouts, ok := PlaneLayouts(driver.FourCCARGB, image.Pt(64, 64))
	if !ok || len(layouts) != 1 || layouts[0].Format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("ARGB layouts %+v", layouts)
	}
	layouts, ok = PlaneLayouts(driver.FourCCABGR, image.Pt(64, 64))
	if !ok || layouts[0].Format != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("ABGR layouts %+v", layouts)
	}
}

func TestPlaneLayoutsUnknown(t *testing.T) {
	if _, ok := PlaneLayouts(driver.FourCCP010, image.Pt(64, 64)); ok {
		t.Error("P010 bound as textures")
	}
}
