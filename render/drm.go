// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image"

	"github.com/gogpu/hwaccel"
	"github.com/gogpu/hwaccel/driver"
)

func init() {
	Register(BackendDRM, newDRMPicture)
}

// drmPicture shares a decoded surface with the compositor as a dmabuf. The
// surface is allocated against the decode session, exported once, and bound
// into the compositor's device through the caller's BindImageFunc.
type drmPicture struct {
	surface  *hwaccel.ScopedSurface
	exported *hwaccel.ExportedSurface
	size     image.Point
}

func newDRMPicture(session *hwaccel.Session, size image.Point, device DeviceHandle, bind BindImageFunc) (Picture, error) {
	surfaces, err := session.CreateScopedSurfaces(
		driver.RTFormatYUV420, size,
		hwaccel.UsageHintDecoder|hwaccel.UsageHintExport,
		1, driver.FourCCNV12)
	if err != nil {
		return nil, err
	}
	surface := surfaces[0]

	exported, err := session.Display().ExportSurface(surface.ID, size)
	if err != nil {
		surface.Close()
		return nil, err
	}

	layouts, ok := PlaneLayouts(exported.FourCC, size)
	if !ok {
		exported.Close()
		surface.Close()
		return nil, fmt.Errorf("render: exported surface fourcc %s does not bind as textures", exported.FourCC)
	}
	if bind != nil {
		if err := bind(exported, layouts); err != nil {
			exported.Close()
			surface.Close()
			return nil, fmt.Errorf("render: bind exported surface: %w", err)
		}
	}

	return &drmPicture{surface: surface, exported: exported, size: size}, nil
}

func (p *drmPicture) Surface() hwaccel.Surface { return p.surface.Surface }

func (p *drmPicture) Size() image.Point { return p.size }

func (p *drmPicture) Close() {
	p.exported.Close()
	p.surface.Close()
}
