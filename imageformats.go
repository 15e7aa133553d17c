package hwaccel

import "github.com/gogpu/hwaccel/driver"

// imageFormatsLocked probes the driver's image formats once and caches the
// result for the life of the process.
//
// Mesa Gallium handles I420 in image transfers but leaves it out of the
// query reply; it is added back whenever YV12 (same layout, planes swapped)
// is reported.
func (d *Display) imageFormatsLocked() []driver.ImageFormat {
	d.mu.AssertHeld()
	if d.fmtsProbed {
		return d.formats
	}
	d.requireOpenLocked()
	d.fmtsProbed = true

	formats, err := d.drv.QueryImageFormats()
	if err != nil {
		reportError(OpQueryImageFormats, nil, err)
		return nil
	}
	d.formats = formats

	if d.impl == ImplementationMesaGallium {
		hasYV12, hasI420 := false, false
		for _, f := range formats {
			switch f.FourCC {
			case driver.FourCCYV12:
				hasYV12 = true
			case driver.FourCCI420:
				hasI420 = true
			}
		}
		if hasYV12 && !hasI420 {
			d.formats = append(d.formats, driver.ImageFormat{FourCC: driver.FourCCI420, BitsPerPixel: 12})
		}
	}
	return d.formats
}

// SupportedImageFormats returns the image formats usable for surface
// upload and readback on this device.
func (d *Display) SupportedImageFormats() []driver.ImageFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.ImageFormat(nil), d.imageFormatsLocked()...)
}

// IsImageFormatSupported reports whether images of the given fourcc work on
// this device.
func (d *Display) IsImageFormatSupported(fourcc driver.FourCC) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasImageFormatLocked(fourcc)
}

func (d *Display) hasImageFormatLocked(fourcc driver.FourCC) bool {
	for _, f := range d.imageFormatsLocked() {
		if f.FourCC == fourcc {
			return true
		}
	}
	return false
}

// NegotiateImageFormat picks the image fourcc to use when reading back a
// surface of the given render-target format, starting from the caller's
// preference. Vendor conversion gaps are folded in here so callers get a
// fourcc that actually works. Returns false when the device has no usable
// format for rt.
func (d *Display) NegotiateImageFormat(rt driver.RTFormat, preferred driver.FourCC) (driver.FourCC, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.impl {
	case ImplementationIntelIHD:
		// iHD cannot convert during the image transfer. 4:2:0 surfaces
		// come out as their native NV12 and nothing else.
		if rt != driver.RTFormatYUV420 {
			return 0, false
		}
		preferred = driver.FourCCNV12
	case ImplementationIntelI965, ImplementationMesaGallium:
		// 4:2:2 surfaces read back as packed YUY2 only.
		if rt == driver.RTFormatYUV422 {
			preferred = driver.FourCCYUY2
		}
	}

	if d.hasImageFormatLocked(preferred) {
		return preferred, true
	}
	// The 4:2:0 planar formats convert between each other in the drivers
	// that support them at all.
	for _, alt := range []driver.FourCC{driver.FourCCNV12, driver.FourCCI420, driver.FourCCYV12} {
		if alt != preferred && d.hasImageFormatLocked(alt) {
			return alt, true
		}
	}
	return 0, false
}
