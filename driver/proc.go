// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"encoding/binary"
	"fmt"
)

// ProcPipelineParams is the payload of a video-processing pipeline parameter
// buffer: one source region, one destination region, one rotation.
// Rectangles are (x, y, width, height).
type ProcPipelineParams struct {
	Source     SurfaceID
	SourceRect [4]uint32
	DestRect   [4]uint32
	Rotation   Rotation
}

// ProcPipelineParamsSize is the encoded byte size of ProcPipelineParams.
const ProcPipelineParamsSize = 40

// EncodeProcPipelineParams serializes p into dst, which must hold
// ProcPipelineParamsSize bytes.
func EncodeProcPipelineParams(p ProcPipelineParams, dst []byte) {
	put := func(i int, v uint32) { binary.LittleEndian.PutUint32(dst[4*i:], v) }
	put(0, uint32(p.Source))
	for i, v := range p.SourceRect {
		put(1+i, v)
	}
	for i, v := range p.DestRect {
		put(5+i, v)
	}
	put(9, uint32(p.Rotation))
}

// DecodeProcPipelineParams parses an encoded pipeline parameter buffer.
func DecodeProcPipelineParams(buf []byte) (ProcPipelineParams, error) {
	if len(buf) < ProcPipelineParamsSize {
		return ProcPipelineParams{}, fmt.Errorf("driver: pipeline params %d bytes, need %d", len(buf), ProcPipelineParamsSize)
	}
	get := func(i int) uint32 { return binary.LittleEndian.Uint32(buf[4*i:]) }
	p := ProcPipelineParams{
		Source:   SurfaceID(get(0)),
		Rotation: Rotation(get(9)),
	}
	for i := range p.SourceRect {
		p.SourceRect[i] = get(1 + i)
	}
	for i := range p.DestRect {
		p.DestRect[i] = get(5 + i)
	}
	return p, nil
}
