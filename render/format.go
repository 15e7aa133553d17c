// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/hwaccel/driver"
)

// PlaneLayout describes how one plane of an exported buffer binds as a
// texture.
type PlaneLayout struct {
	// Format is the texture format of the plane. Multi-byte samples
	// (NV12's interleaved chroma) are expressed as wider R8 planes, so
	// Size already accounts for the sample stride.
	Format gputypes.TextureFormat

	// Size is the plane's texture dimensions in texels.
	Size image.Point
}

// PlaneLayouts returns the per-plane texture layouts for an exported buffer
// of the given fourcc and pixel size. Returns false for fourccs that do not
// bind as textures.
func PlaneLayouts(fourcc driver.FourCC, size image.Point) ([]PlaneLayout, bool) {
	switch fourcc {
	case driver.FourCCARGB, driver.FourCCXRGB:
		return []PlaneLayout{{Format: gputypes.TextureFormatBGRA8Unorm, Size: size}}, true
	case driver.FourCCABGR, driver.FourCCXBGR:
		return []PlaneLayout{{Format: gputypes.TextureFormatRGBA8Unorm, Size: size}}, true
	case driver.FourCCNV12:
		return []PlaneLayout{
			{Format: gputypes.TextureFormatR8Unorm, Size: size},
			// Interleaved CbCr at half vertical resolution; full width
			// in bytes because each texel pair is one chroma sample.
			{Format: gputypes.TextureFormatR8Unorm, Size: image.Point{X: size.X, Y: size.Y / 2}},
		}, true
	case driver.FourCCYV12, driver.FourCCI420:
		half := image.Point{X: size.X / 2, Y: size.Y / 2}
		return []PlaneLayout{
			{Format: gputypes.TextureFormatR8Unorm, Size: size},
			{Format: gputypes.TextureFormatR8Unorm, Size: half},
			{Format: gputypes.TextureFormatR8Unorm, Size: half},
		}, true
	}
	return nil, false
}
