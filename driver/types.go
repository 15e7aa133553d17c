// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "fmt"

// Resource handles. Each is an opaque driver-assigned id; the Invalid*
// sentinels are never assigned to a live resource and mark absent values.
type (
	ConfigID           uint32
	ContextID          uint32
	SurfaceID          uint32
	BufferID           uint32
	ImageID            uint32
	ProtectedSessionID uint32
)

const (
	InvalidConfig           ConfigID           = 0xffffffff
	InvalidContext          ContextID          = 0xffffffff
	InvalidSurface          SurfaceID          = 0xffffffff
	InvalidBuffer           BufferID           = 0xffffffff
	InvalidImage            ImageID            = 0xffffffff
	InvalidProtectedSession ProtectedSessionID = 0xffffffff
)

// Profile identifies a codec profile as reported by the driver. Values the
// session layer does not recognize still round-trip through queries.
type Profile int32

const (
	ProfileNone Profile = -1

	ProfileH264Baseline            Profile = 5
	ProfileH264Main                Profile = 6
	ProfileH264High                Profile = 7
	ProfileVC1Simple               Profile = 8
	ProfileVC1Main                 Profile = 9
	ProfileVC1Advanced             Profile = 10
	ProfileJPEGBaseline            Profile = 18
	ProfileVP8Version0_3           Profile = 19
	ProfileVP9Profile0             Profile = 25
	ProfileVP9Profile1             Profile = 26
	ProfileVP9Profile2             Profile = 27
	ProfileVP9Profile3             Profile = 28
	ProfileHEVCMain                Profile = 23
	ProfileHEVCMain10              Profile = 24
	ProfileHEVCMain422_10          Profile = 30
	ProfileAV1Profile0             Profile = 32
	ProfileAV1Profile1             Profile = 33
	ProfileH264ConstrainedBaseline Profile = 35

	// ProfileVideoProc is the pseudo-profile for video post-processing.
	ProfileVideoProc Profile = 40

	// ProfileProtected is the pseudo-profile for protected (DRM) session
	// configurations.
	ProfileProtected Profile = 42
)

// Entrypoint identifies the kind of work a context performs.
type Entrypoint int32

const (
	// EntrypointNone is the wildcard in capability lookups: it matches the
	// default entrypoint for the query's mode.
	EntrypointNone Entrypoint = 0

	EntrypointVLD        Entrypoint = 1
	EntrypointEncSlice   Entrypoint = 6
	EntrypointEncPicture Entrypoint = 7
	EntrypointEncSliceLP Entrypoint = 8
	EntrypointVideoProc  Entrypoint = 10
	EntrypointProtected  Entrypoint = 11
)

func (e Entrypoint) String() string {
	switch e {
	case EntrypointNone:
		return "none"
	case EntrypointVLD:
		return "vld"
	case EntrypointEncSlice:
		return "enc-slice"
	case EntrypointEncPicture:
		return "enc-picture"
	case EntrypointEncSliceLP:
		return "enc-slice-lp"
	case EntrypointVideoProc:
		return "video-proc"
	case EntrypointProtected:
		return "protected"
	}
	return fmt.Sprintf("entrypoint(%d)", int32(e))
}

// ConfigAttribType identifies a configuration attribute.
type ConfigAttribType int32

const (
	ConfigAttribRTFormat         ConfigAttribType = 0
	ConfigAttribRateControl      ConfigAttribType = 5
	ConfigAttribEncPackedHeaders ConfigAttribType = 10
	ConfigAttribEncMaxRefFrames  ConfigAttribType = 13
	ConfigAttribEncQualityRange  ConfigAttribType = 21
	ConfigAttribEncryption       ConfigAttribType = 7
	ConfigAttribProtectedUsage   ConfigAttribType = 41
)

// AttribNotSupported is the value the driver writes into a queried attribute
// it does not support.
const AttribNotSupported uint32 = 0x80000000

// ConfigAttrib is an attribute (type, value) pair. In GetConfigAttributes the
// Value field is an output; in CreateConfig it is a requirement.
type ConfigAttrib struct {
	Type  ConfigAttribType
	Value uint32
}

// RTFormat is a render-target format bit set.
type RTFormat uint32

const (
	RTFormatYUV420    RTFormat = 0x00000001
	RTFormatYUV422    RTFormat = 0x00000002
	RTFormatYUV444    RTFormat = 0x00000004
	RTFormatYUV420_10 RTFormat = 0x00000100
	RTFormatRGB32     RTFormat = 0x00010000
	RTFormatProtected RTFormat = 0x80000000
)

// FourCC is a four-character pixel format code, packed little-endian.
type FourCC uint32

// MakeFourCC packs four format characters into a FourCC.
func MakeFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	FourCCNV12 = MakeFourCC('N', 'V', '1', '2')
	FourCCI420 = MakeFourCC('I', '4', '2', '0')
	FourCCYV12 = MakeFourCC('Y', 'V', '1', '2')
	FourCCIMC3 = MakeFourCC('I', 'M', 'C', '3')
	FourCCYUY2 = MakeFourCC('Y', 'U', 'Y', '2')
	FourCCP010 = MakeFourCC('P', '0', '1', '0')
	FourCCARGB = MakeFourCC('A', 'R', 'G', 'B')
	FourCCABGR = MakeFourCC('A', 'B', 'G', 'R')
	FourCCXRGB = MakeFourCC('X', 'R', 'G', 'B')
	FourCCXBGR = MakeFourCC('X', 'B', 'G', 'R')
	FourCCRGBP = MakeFourCC('R', 'G', 'B', 'P')
)

func (f FourCC) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("fourcc(0x%08x)", uint32(f))
		}
	}
	return string(b[:])
}

// UsageHint is a surface usage hint bit set. Zero means unspecified.
type UsageHint uint32

const (
	UsageHintGeneric    UsageHint = 0x00000000
	UsageHintDecoder    UsageHint = 0x00000001
	UsageHintEncoder    UsageHint = 0x00000002
	UsageHintVideoProcW UsageHint = 0x00000008
	UsageHintExport     UsageHint = 0x00000020
)

// ContextFlag modifies context creation.
type ContextFlag uint32

const (
	// ContextFlagProgressive marks a non-interlaced content context.
	ContextFlagProgressive ContextFlag = 0x01
)

// BufferType identifies the kind of a command buffer.
type BufferType int32

const (
	BufferPictureParameter  BufferType = 0
	BufferIQMatrix          BufferType = 1
	BufferSliceParameter    BufferType = 3
	BufferSliceData         BufferType = 4
	BufferEncCodedOutput    BufferType = 21
	BufferEncSequenceParam  BufferType = 22
	BufferEncPictureParam   BufferType = 23
	BufferEncSliceParam     BufferType = 24
	BufferEncPackedHeader   BufferType = 26
	BufferEncPackedData     BufferType = 27
	BufferProcPipelineParam BufferType = 41
	BufferEncMiscParameter  BufferType = 28
	BufferProtectedSession  BufferType = 51
)

// ExternalBufferDescriptor describes caller-owned memory backing an imported
// surface. All planes reference the same underlying buffer object; PlaneFDs
// carries one duplicate of its file descriptor per plane.
type ExternalBufferDescriptor struct {
	FourCC        FourCC
	Width, Height uint32
	TotalSize     uint32

	PlaneFDs     []int
	PlanePitches []uint32
	PlaneOffsets []uint32

	// Protected sets the protected flag on the external buffer itself.
	// Drivers that want the protected bit on the render-target format
	// instead get it through the format argument of ImportSurface.
	Protected bool
}

// SurfaceDescriptor describes a surface's backing memory as exported for
// zero-copy sharing.
type SurfaceDescriptor struct {
	FourCC        FourCC
	Width, Height uint32
	Objects       []SurfaceObject
	Layers        []SurfaceLayer
}

// SurfaceObject is one exported buffer object.
type SurfaceObject struct {
	FD       int
	Size     uint32
	Modifier uint64
}

// SurfaceLayer is one plane of an exported surface. ObjectIndex refers into
// SurfaceDescriptor.Objects.
type SurfaceLayer struct {
	DRMFormat   uint32
	ObjectIndex int
	Offset      uint32
	Pitch       uint32
}

// CodedSegment is one segment of an encode-output buffer's data chain.
type CodedSegment struct {
	Data   []byte
	Status uint32
}

// ImageFormat describes a driver image format.
type ImageFormat struct {
	FourCC       FourCC
	ByteOrder    uint32
	BitsPerPixel uint32
}

// Image is a mapped driver image over a surface or standalone allocation.
type Image struct {
	ID            ImageID
	Format        ImageFormat
	Buf           BufferID
	Width, Height uint32
	DataSize      uint32
	Planes        uint32
	Pitches       [3]uint32
	Offsets       [3]uint32
}

// Rotation is a clockwise pre-transform rotation for video processing.
type Rotation uint32

const (
	RotationNone Rotation = 0x00000000
	Rotation90   Rotation = 0x00000001
	Rotation180  Rotation = 0x00000002
	Rotation270  Rotation = 0x00000004
)

// PipelineCaps reports video-processing capabilities of a context.
type PipelineCaps struct {
	// RotationFlags has the bit Rotation<n> set for each supported
	// rotation.
	RotationFlags uint32
}

// Supports reports whether the pipeline can apply r. RotationNone is always
// supported.
func (c PipelineCaps) Supports(r Rotation) bool {
	if r == RotationNone {
		return true
	}
	return c.RotationFlags&uint32(r) != 0
}

// SurfaceConstraints are the surface limits of a configuration.
type SurfaceConstraints struct {
	MinWidth, MinHeight uint32
	MaxWidth, MaxHeight uint32
	// PixelFormats lists the allocatable fourccs; empty means the driver
	// did not report any, which callers treat as "no constraint".
	PixelFormats []FourCC
}
