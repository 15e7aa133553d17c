// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build linux && cgo

// Package libva implements driver.Driver over libva and libva-drm.
// This package requires libva headers and libraries to be built; the
// resulting binary needs a supported graphics card and its driver.
//
// Importing the package registers the driver:
//
//	import _ "github.com/gogpu/hwaccel/driver/libva"
package libva

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/hwaccel/driver"
)

// #cgo pkg-config: libva libva-drm
// #include <stdlib.h>
// #include <string.h>
// #include <fcntl.h>
// #include <unistd.h>
// #include <va/va.h>
// #include <va/va_drm.h>
// #include <va/va_vpp.h>
// #include <va/va_protected_content.h>
import "C"

const renderNode = "/dev/dri/renderD128"

func init() {
	driver.Register(&vaDriver{fd: -1})
}

// vaDriver is the libva implementation of driver.Driver. Calls are not
// serialized here; the session layer owns the lock.
type vaDriver struct {
	dpy   C.VADisplay
	fd    C.int
	ownFD bool

	buffers map[driver.BufferID]*vaBuffer
	images  map[driver.ImageID]*C.VAImage
}

// vaBuffer tracks per-buffer translation state. Plain buffers map straight
// through; typed buffers (pipeline parameters, protected execute) present a
// stable wire layout to the session layer and translate to the C structs on
// unmap.
type vaBuffer struct {
	typ    driver.BufferType
	size   int
	shadow []byte

	// protected execute blobs, C-allocated so the TEE can reach them.
	execIn  unsafe.Pointer
	execOut unsafe.Pointer
	execCap C.uint32_t

	// pipeline regions, C-allocated because the parameter struct keeps
	// pointing at them after the unmap.
	regions *C.VARectangle

	mapped unsafe.Pointer
}

func vaStatus(op string, st C.VAStatus) error {
	switch st {
	case C.VA_STATUS_SUCCESS:
		return nil
	case C.VA_STATUS_ERROR_OPERATION_FAILED:
		return fmt.Errorf("%s: %w", op, driver.ErrOperationFailed)
	case C.VA_STATUS_ERROR_ALLOCATION_FAILED:
		return fmt.Errorf("%s: %w", op, driver.ErrAllocationFailed)
	case C.VA_STATUS_ERROR_INVALID_CONFIG,
		C.VA_STATUS_ERROR_INVALID_CONTEXT,
		C.VA_STATUS_ERROR_INVALID_SURFACE,
		C.VA_STATUS_ERROR_INVALID_BUFFER,
		C.VA_STATUS_ERROR_INVALID_IMAGE:
		return fmt.Errorf("%s: %w", op, driver.ErrInvalidID)
	}
	return fmt.Errorf("%s: %s (%#x)", op, C.GoString(C.vaErrorStr(st)), int(st))
}

// Profile and entrypoint values cross the boundary through these tables so
// the Go constants never have to match the C enum numerically.
var profileToVA = map[driver.Profile]C.VAProfile{
	driver.ProfileH264ConstrainedBaseline: C.VAProfileH264ConstrainedBaseline,
	driver.ProfileH264Main:                C.VAProfileH264Main,
	driver.ProfileH264High:                C.VAProfileH264High,
	driver.ProfileVC1Simple:               C.VAProfileVC1Simple,
	driver.ProfileVC1Main:                 C.VAProfileVC1Main,
	driver.ProfileVC1Advanced:             C.VAProfileVC1Advanced,
	driver.ProfileJPEGBaseline:            C.VAProfileJPEGBaseline,
	driver.ProfileVP8Version0_3:           C.VAProfileVP8Version0_3,
	driver.ProfileVP9Profile0:             C.VAProfileVP9Profile0,
	driver.ProfileVP9Profile1:             C.VAProfileVP9Profile1,
	driver.ProfileVP9Profile2:             C.VAProfileVP9Profile2,
	driver.ProfileVP9Profile3:             C.VAProfileVP9Profile3,
	driver.ProfileHEVCMain:                C.VAProfileHEVCMain,
	driver.ProfileHEVCMain10:              C.VAProfileHEVCMain10,
	driver.ProfileHEVCMain422_10:          C.VAProfileHEVCMain422_10,
	driver.ProfileAV1Profile0:             C.VAProfileAV1Profile0,
	driver.ProfileAV1Profile1:             C.VAProfileAV1Profile1,
	driver.ProfileVideoProc:               C.VAProfileNone,
	driver.ProfileProtected:               C.VAProfileProtected,
}

var profileFromVA = func() map[C.VAProfile]driver.Profile {
	m := make(map[C.VAProfile]driver.Profile, len(profileToVA))
	for p, vp := range profileToVA {
		m[vp] = p
	}
	return m
}()

var entrypointToVA = map[driver.Entrypoint]C.VAEntrypoint{
	driver.EntrypointVLD:        C.VAEntrypointVLD,
	driver.EntrypointEncSlice:   C.VAEntrypointEncSlice,
	driver.EntrypointEncPicture: C.VAEntrypointEncPicture,
	driver.EntrypointEncSliceLP: C.VAEntrypointEncSliceLP,
	driver.EntrypointVideoProc:  C.VAEntrypointVideoProc,
	driver.EntrypointProtected:  C.VAEntrypointProtectedContent,
}

var entrypointFromVA = func() map[C.VAEntrypoint]driver.Entrypoint {
	m := make(map[C.VAEntrypoint]driver.Entrypoint, len(entrypointToVA))
	for e, ve := range entrypointToVA {
		m[ve] = e
	}
	return m
}()

var bufferTypeToVA = map[driver.BufferType]C.VABufferType{
	driver.BufferPictureParameter:  C.VAPictureParameterBufferType,
	driver.BufferIQMatrix:          C.VAIQMatrixBufferType,
	driver.BufferSliceParameter:    C.VASliceParameterBufferType,
	driver.BufferSliceData:         C.VASliceDataBufferType,
	driver.BufferEncCodedOutput:    C.VAEncCodedBufferType,
	driver.BufferEncSequenceParam:  C.VAEncSequenceParameterBufferType,
	driver.BufferEncPictureParam:   C.VAEncPictureParameterBufferType,
	driver.BufferEncSliceParam:     C.VAEncSliceParameterBufferType,
	driver.BufferEncPackedHeader:   C.VAEncPackedHeaderParameterBufferType,
	driver.BufferEncPackedData:     C.VAEncPackedHeaderDataBufferType,
	driver.BufferEncMiscParameter:  C.VAEncMiscParameterBufferType,
	driver.BufferProcPipelineParam: C.VAProcPipelineParameterBufferType,
	driver.BufferProtectedSession:  C.VAProtectedSessionExecuteBufferType,
}

func (d *vaDriver) Name() string { return "libva" }

func (d *vaDriver) Open(fd int) (int, int, error) {
	if d.dpy != nil {
		return 0, 0, fmt.Errorf("libva: already open")
	}
	cfd := C.int(fd)
	own := false
	if fd < 0 {
		path := C.CString(renderNode)
		defer C.free(unsafe.Pointer(path))
		cfd = C.open(path, C.O_RDWR|C.O_CLOEXEC)
		if cfd < 0 {
			return 0, 0, fmt.Errorf("libva: open %s: %w", renderNode, driver.ErrNotInstalled)
		}
		own = true
	}

	dpy := C.vaGetDisplayDRM(cfd)
	if C.vaDisplayIsValid(dpy) == 0 {
		if own {
			C.close(cfd)
		}
		return 0, 0, fmt.Errorf("libva: no DRM display: %w", driver.ErrNotInstalled)
	}

	var major, minor C.int
	if err := vaStatus("vaInitialize", C.vaInitialize(dpy, &major, &minor)); err != nil {
		if own {
			C.close(cfd)
		}
		return 0, 0, err
	}

	d.dpy = dpy
	d.fd = cfd
	d.ownFD = own
	d.buffers = make(map[driver.BufferID]*vaBuffer)
	d.images = make(map[driver.ImageID]*C.VAImage)
	return int(major), int(minor), nil
}

func (d *vaDriver) Close() error {
	if d.dpy == nil {
		return fmt.Errorf("libva: close of unopened driver")
	}
	err := vaStatus("vaTerminate", C.vaTerminate(d.dpy))
	if d.ownFD {
		C.close(d.fd)
	}
	d.dpy = nil
	d.fd = -1
	d.buffers = nil
	d.images = nil
	return err
}

func (d *vaDriver) VendorString() string {
	return C.GoString(C.vaQueryVendorString(d.dpy))
}

func (d *vaDriver) QueryProfiles() ([]driver.Profile, error) {
	n := C.vaMaxNumProfiles(d.dpy)
	buf := make([]C.VAProfile, n)
	if err := vaStatus("vaQueryConfigProfiles", C.vaQueryConfigProfiles(d.dpy, &buf[0], &n)); err != nil {
		return nil, err
	}
	out := make([]driver.Profile, 0, n)
	for _, vp := range buf[:n] {
		if p, ok := profileFromVA[vp]; ok {
			out = append(out, p)
		} else {
			// Hand unknown profiles through untranslated; the session
			// layer drops what it does not recognize.
			out = append(out, driver.Profile(vp))
		}
	}
	return out, nil
}

func (d *vaDriver) QueryEntrypoints(profile driver.Profile) ([]driver.Entrypoint, error) {
	vp, ok := profileToVA[profile]
	if !ok {
		return nil, nil
	}
	n := C.vaMaxNumEntrypoints(d.dpy)
	buf := make([]C.VAEntrypoint, n)
	if err := vaStatus("vaQueryConfigEntrypoints", C.vaQueryConfigEntrypoints(d.dpy, vp, &buf[0], &n)); err != nil {
		return nil, err
	}
	out := make([]driver.Entrypoint, 0, n)
	for _, ve := range buf[:n] {
		if e, ok := entrypointFromVA[ve]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func toVAAttribs(attribs []driver.ConfigAttrib) []C.VAConfigAttrib {
	out := make([]C.VAConfigAttrib, len(attribs))
	for i, a := range attribs {
		out[i]._type = C.VAConfigAttribType(a.Type)
		out[i].value = C.uint32_t(a.Value)
	}
	return out
}

func (d *vaDriver) GetConfigAttributes(profile driver.Profile, ep driver.Entrypoint, attribs []driver.ConfigAttrib) error {
	if len(attribs) == 0 {
		return nil
	}
	vp, ok := profileToVA[profile]
	if !ok {
		return fmt.Errorf("libva: profile %d: %w", profile, driver.ErrInvalidID)
	}
	ca := toVAAttribs(attribs)
	st := C.vaGetConfigAttributes(d.dpy, vp, entrypointToVA[ep], &ca[0], C.int(len(ca)))
	if err := vaStatus("vaGetConfigAttributes", st); err != nil {
		return err
	}
	for i := range attribs {
		attribs[i].Value = uint32(ca[i].value)
	}
	return nil
}

func (d *vaDriver) CreateConfig(profile driver.Profile, ep driver.Entrypoint, attribs []driver.ConfigAttrib) (driver.ConfigID, error) {
	vp, ok := profileToVA[profile]
	if !ok {
		return driver.InvalidConfig, fmt.Errorf("libva: profile %d: %w", profile, driver.ErrInvalidID)
	}
	var ca *C.VAConfigAttrib
	va := toVAAttribs(attribs)
	if len(va) > 0 {
		ca = &va[0]
	}
	var id C.VAConfigID
	st := C.vaCreateConfig(d.dpy, vp, entrypointToVA[ep], ca, C.int(len(va)), &id)
	if err := vaStatus("vaCreateConfig", st); err != nil {
		return driver.InvalidConfig, err
	}
	return driver.ConfigID(id), nil
}

func (d *vaDriver) DestroyConfig(id driver.ConfigID) error {
	return vaStatus("vaDestroyConfig", C.vaDestroyConfig(d.dpy, C.VAConfigID(id)))
}

func (d *vaDriver) QueryConfigAttributes(id driver.ConfigID) ([]driver.ConfigAttrib, error) {
	n := C.vaMaxNumConfigAttributes(d.dpy)
	buf := make([]C.VAConfigAttrib, n)
	var profile C.VAProfile
	var ep C.VAEntrypoint
	st := C.vaQueryConfigAttributes(d.dpy, C.VAConfigID(id), &profile, &ep, &buf[0], &n)
	if err := vaStatus("vaQueryConfigAttributes", st); err != nil {
		return nil, err
	}
	out := make([]driver.ConfigAttrib, 0, n)
	for _, a := range buf[:n] {
		out = append(out, driver.ConfigAttrib{Type: driver.ConfigAttribType(a._type), Value: uint32(a.value)})
	}
	return out, nil
}

func (d *vaDriver) QuerySurfaceAttributes(id driver.ConfigID) (driver.SurfaceConstraints, error) {
	var sc driver.SurfaceConstraints
	var n C.uint
	st := C.vaQuerySurfaceAttributes(d.dpy, C.VAConfigID(id), nil, &n)
	if err := vaStatus("vaQuerySurfaceAttributes", st); err != nil {
		return sc, err
	}
	if n == 0 {
		return sc, nil
	}
	buf := make([]C.VASurfaceAttrib, n)
	st = C.vaQuerySurfaceAttributes(d.dpy, C.VAConfigID(id), &buf[0], &n)
	if err := vaStatus("vaQuerySurfaceAttributes", st); err != nil {
		return sc, err
	}
	for _, a := range buf[:n] {
		v := uint32(*(*C.int32_t)(unsafe.Pointer(&a.value.value)))
		switch a._type {
		case C.VASurfaceAttribMinWidth:
			sc.MinWidth = v
		case C.VASurfaceAttribMinHeight:
			sc.MinHeight = v
		case C.VASurfaceAttribMaxWidth:
			sc.MaxWidth = v
		case C.VASurfaceAttribMaxHeight:
			sc.MaxHeight = v
		case C.VASurfaceAttribPixelFormat:
			sc.PixelFormats = append(sc.PixelFormats, driver.FourCC(v))
		}
	}
	return sc, nil
}

func genericAttrib(typ C.VASurfaceAttribType, value uint32) C.VASurfaceAttrib {
	var a C.VASurfaceAttrib
	a._type = typ
	a.flags = C.VA_SURFACE_ATTRIB_SETTABLE
	a.value._type = C.VAGenericValueTypeInteger
	*(*C.int32_t)(unsafe.Pointer(&a.value.value)) = C.int32_t(value)
	return a
}

func (d *vaDriver) CreateSurfaces(format driver.RTFormat, width, height uint32, count int, hints driver.UsageHint, fourcc driver.FourCC) ([]driver.SurfaceID, error) {
	var attribs []C.VASurfaceAttrib
	if fourcc != 0 {
		attribs = append(attribs, genericAttrib(C.VASurfaceAttribPixelFormat, uint32(fourcc)))
	}
	if hints != driver.UsageHintGeneric {
		attribs = append(attribs, genericAttrib(C.VASurfaceAttribUsageHint, uint32(hints)))
	}
	var ap *C.VASurfaceAttrib
	if len(attribs) > 0 {
		ap = &attribs[0]
	}
	ids := make([]C.VASurfaceID, count)
	st := C.vaCreateSurfaces(d.dpy, C.uint(format), C.uint(width), C.uint(height),
		&ids[0], C.uint(count), ap, C.uint(len(attribs)))
	if err := vaStatus("vaCreateSurfaces", st); err != nil {
		return nil, err
	}
	out := make([]driver.SurfaceID, count)
	for i, id := range ids {
		out[i] = driver.SurfaceID(id)
	}
	return out, nil
}

func (d *vaDriver) ImportSurface(format driver.RTFormat, desc *driver.ExternalBufferDescriptor) (driver.SurfaceID, error) {
	// The descriptor and its fd array live in C memory for the duration of
	// the call so the attribute list stays free of Go pointers.
	ext := (*C.VASurfaceAttribExternalBuffers)(C.malloc(C.sizeof_VASurfaceAttribExternalBuffers))
	defer C.free(unsafe.Pointer(ext))
	C.memset(unsafe.Pointer(ext), 0, C.sizeof_VASurfaceAttribExternalBuffers)
	ext.pixel_format = C.uint32_t(desc.FourCC)
	ext.width = C.uint32_t(desc.Width)
	ext.height = C.uint32_t(desc.Height)
	ext.data_size = C.uint32_t(desc.TotalSize)
	ext.num_planes = C.uint32_t(len(desc.PlanePitches))
	for i, p := range desc.PlanePitches {
		ext.pitches[i] = C.uint32_t(p)
	}
	for i, o := range desc.PlaneOffsets {
		ext.offsets[i] = C.uint32_t(o)
	}
	fds := (*C.uintptr_t)(C.malloc(C.size_t(len(desc.PlaneFDs)) * C.sizeof_uintptr_t))
	defer C.free(unsafe.Pointer(fds))
	fdSlice := unsafe.Slice(fds, len(desc.PlaneFDs))
	for i, fd := range desc.PlaneFDs {
		fdSlice[i] = C.uintptr_t(fd)
	}
	ext.buffers = fds
	ext.num_buffers = C.uint32_t(len(desc.PlaneFDs))
	if desc.Protected {
		ext.flags |= C.VA_SURFACE_EXTBUF_DESCRIPTOR_PROTECTED
	}

	attribs := []C.VASurfaceAttrib{
		genericAttrib(C.VASurfaceAttribMemoryType, C.VA_SURFACE_ATTRIB_MEM_TYPE_DRM_PRIME),
	}
	var ptr C.VASurfaceAttrib
	ptr._type = C.VASurfaceAttribExternalBufferDescriptor
	ptr.flags = C.VA_SURFACE_ATTRIB_SETTABLE
	ptr.value._type = C.VAGenericValueTypePointer
	*(*unsafe.Pointer)(unsafe.Pointer(&ptr.value.value)) = unsafe.Pointer(ext)
	attribs = append(attribs, ptr)

	var id C.VASurfaceID
	st := C.vaCreateSurfaces(d.dpy, C.uint(format), ext.width, ext.height,
		&id, 1, &attribs[0], C.uint(len(attribs)))
	if err := vaStatus("vaCreateSurfaces", st); err != nil {
		return driver.InvalidSurface, err
	}
	return driver.SurfaceID(id), nil
}

func (d *vaDriver) DestroySurfaces(ids []driver.SurfaceID) error {
	if len(ids) == 0 {
		return nil
	}
	va := make([]C.VASurfaceID, len(ids))
	for i, id := range ids {
		va[i] = C.VASurfaceID(id)
	}
	return vaStatus("vaDestroySurfaces", C.vaDestroySurfaces(d.dpy, &va[0], C.int(len(va))))
}

func (d *vaDriver) SyncSurface(id driver.SurfaceID) error {
	return vaStatus("vaSyncSurface", C.vaSyncSurface(d.dpy, C.VASurfaceID(id)))
}

func (d *vaDriver) ExportSurfaceHandle(id driver.SurfaceID) (*driver.SurfaceDescriptor, error) {
	var desc C.VADRMPRIMESurfaceDescriptor
	st := C.vaExportSurfaceHandle(d.dpy, C.VASurfaceID(id),
		C.VA_SURFACE_ATTRIB_MEM_TYPE_DRM_PRIME_2,
		C.VA_EXPORT_SURFACE_READ_WRITE|C.VA_EXPORT_SURFACE_SEPARATE_LAYERS,
		unsafe.Pointer(&desc))
	if err := vaStatus("vaExportSurfaceHandle", st); err != nil {
		return nil, err
	}

	out := &driver.SurfaceDescriptor{
		FourCC: driver.FourCC(desc.fourcc),
		Width:  uint32(desc.width),
		Height: uint32(desc.height),
	}
	for i := 0; i < int(desc.num_objects); i++ {
		obj := desc.objects[i]
		out.Objects = append(out.Objects, driver.SurfaceObject{
			FD:       int(obj.fd),
			Size:     uint32(obj.size),
			Modifier: uint64(obj.drm_format_modifier),
		})
	}
	for i := 0; i < int(desc.num_layers); i++ {
		layer := desc.layers[i]
		// Separate layers carry one plane each.
		out.Layers = append(out.Layers, driver.SurfaceLayer{
			DRMFormat:   uint32(layer.drm_format),
			ObjectIndex: int(layer.object_index[0]),
			Offset:      uint32(layer.offset[0]),
			Pitch:       uint32(layer.pitch[0]),
		})
	}
	return out, nil
}

func (d *vaDriver) CreateContext(config driver.ConfigID, width, height uint32, flags driver.ContextFlag) (driver.ContextID, error) {
	var id C.VAContextID
	cflags := C.int(0)
	if flags&driver.ContextFlagProgressive != 0 {
		cflags |= C.VA_PROGRESSIVE
	}
	st := C.vaCreateContext(d.dpy, C.VAConfigID(config), C.int(width), C.int(height),
		cflags, nil, 0, &id)
	if err := vaStatus("vaCreateContext", st); err != nil {
		return driver.InvalidContext, err
	}
	return driver.ContextID(id), nil
}

func (d *vaDriver) DestroyContext(id driver.ContextID) error {
	return vaStatus("vaDestroyContext", C.vaDestroyContext(d.dpy, C.VAContextID(id)))
}

func (d *vaDriver) CreateBuffer(context driver.ContextID, typ driver.BufferType, size int) (driver.BufferID, error) {
	vaType, ok := bufferTypeToVA[typ]
	if !ok {
		return driver.InvalidBuffer, fmt.Errorf("libva: buffer type %d: %w", typ, driver.ErrInvalidID)
	}

	// Typed buffers keep the session-layer wire layout in a shadow and
	// translate on unmap; the VA allocation is the C struct.
	vaSize := C.uint(size)
	switch typ {
	case driver.BufferProcPipelineParam:
		vaSize = C.sizeof_VAProcPipelineParameterBuffer
	case driver.BufferProtectedSession:
		vaSize = C.sizeof_VAProtectedSessionExecuteBuffer
	}

	var id C.VABufferID
	st := C.vaCreateBuffer(d.dpy, C.VAContextID(context), vaType, vaSize, 1, nil, &id)
	if err := vaStatus("vaCreateBuffer", st); err != nil {
		return driver.InvalidBuffer, err
	}
	b := &vaBuffer{typ: typ, size: size}
	if typ == driver.BufferProcPipelineParam || typ == driver.BufferProtectedSession {
		b.shadow = make([]byte, size)
	}
	d.buffers[driver.BufferID(id)] = b
	return driver.BufferID(id), nil
}

func (d *vaDriver) MapBuffer(id driver.BufferID) ([]byte, error) {
	b := d.buffers[id]
	if b == nil {
		return nil, fmt.Errorf("libva: buffer %d: %w", id, driver.ErrInvalidID)
	}
	if b.shadow != nil {
		if b.typ == driver.BufferProtectedSession && b.execOut != nil {
			// Fold the TEE's output back into the shadow for the reader.
			d.readExecOutput(id, b)
		}
		return b.shadow, nil
	}
	var p unsafe.Pointer
	if err := vaStatus("vaMapBuffer", C.vaMapBuffer(d.dpy, C.VABufferID(id), &p)); err != nil {
		return nil, err
	}
	b.mapped = p
	return unsafe.Slice((*byte)(p), b.size), nil
}

// readExecOutput copies the executed C-side output blob into the shadow's
// output region.
func (d *vaDriver) readExecOutput(id driver.BufferID, b *vaBuffer) {
	var p unsafe.Pointer
	if C.vaMapBuffer(d.dpy, C.VABufferID(id), &p) != C.VA_STATUS_SUCCESS {
		return
	}
	exec := (*C.VAProtectedSessionExecuteBuffer)(p)
	if n := exec.output.data_size; n > 0 && n <= b.execCap {
		out := unsafe.Slice((*byte)(b.execOut), int(n))
		driver.SetExecuteOutput(b.shadow, out)
	}
	C.vaUnmapBuffer(d.dpy, C.VABufferID(id))
}

func (d *vaDriver) MapCodedBuffer(id driver.BufferID) ([]driver.CodedSegment, error) {
	b := d.buffers[id]
	if b == nil {
		return nil, fmt.Errorf("libva: buffer %d: %w", id, driver.ErrInvalidID)
	}
	var p unsafe.Pointer
	if err := vaStatus("vaMapBuffer", C.vaMapBuffer(d.dpy, C.VABufferID(id), &p)); err != nil {
		return nil, err
	}
	b.mapped = p

	var segments []driver.CodedSegment
	for seg := (*C.VACodedBufferSegment)(p); seg != nil; seg = (*C.VACodedBufferSegment)(seg.next) {
		segments = append(segments, driver.CodedSegment{
			Data:   unsafe.Slice((*byte)(seg.buf), int(seg.size)),
			Status: uint32(seg.status),
		})
	}
	return segments, nil
}

func (d *vaDriver) UnmapBuffer(id driver.BufferID) error {
	b := d.buffers[id]
	if b == nil {
		return fmt.Errorf("libva: buffer %d: %w", id, driver.ErrInvalidID)
	}
	if b.shadow == nil {
		b.mapped = nil
		return vaStatus("vaUnmapBuffer", C.vaUnmapBuffer(d.dpy, C.VABufferID(id)))
	}
	// Translate the shadow into the C struct the driver consumes.
	switch b.typ {
	case driver.BufferProcPipelineParam:
		return d.flushProcParams(id, b)
	case driver.BufferProtectedSession:
		return d.flushExecParams(id, b)
	}
	return nil
}

func (d *vaDriver) flushProcParams(id driver.BufferID, b *vaBuffer) error {
	params, err := driver.DecodeProcPipelineParams(b.shadow)
	if err != nil {
		return err
	}
	var p unsafe.Pointer
	if err := vaStatus("vaMapBuffer", C.vaMapBuffer(d.dpy, C.VABufferID(id), &p)); err != nil {
		return err
	}
	pipe := (*C.VAProcPipelineParameterBuffer)(p)
	C.memset(p, 0, C.sizeof_VAProcPipelineParameterBuffer)
	pipe.surface = C.VASurfaceID(params.Source)

	if b.regions == nil {
		b.regions = (*C.VARectangle)(C.malloc(2 * C.sizeof_VARectangle))
	}
	rects := unsafe.Slice(b.regions, 2)
	rects[0] = C.VARectangle{
		x:      C.int16_t(params.SourceRect[0]),
		y:      C.int16_t(params.SourceRect[1]),
		width:  C.uint16_t(params.SourceRect[2]),
		height: C.uint16_t(params.SourceRect[3]),
	}
	rects[1] = C.VARectangle{
		x:      C.int16_t(params.DestRect[0]),
		y:      C.int16_t(params.DestRect[1]),
		width:  C.uint16_t(params.DestRect[2]),
		height: C.uint16_t(params.DestRect[3]),
	}
	pipe.surface_region = &rects[0]
	pipe.output_region = &rects[1]
	pipe.rotation_state = C.uint32_t(vaRotation(params.Rotation))
	pipe.filter_flags = C.VA_FILTER_SCALING_DEFAULT
	return vaStatus("vaUnmapBuffer", C.vaUnmapBuffer(d.dpy, C.VABufferID(id)))
}

func vaRotation(r driver.Rotation) uint32 {
	switch r {
	case driver.Rotation90:
		return C.VA_ROTATION_90
	case driver.Rotation180:
		return C.VA_ROTATION_180
	case driver.Rotation270:
		return C.VA_ROTATION_270
	}
	return C.VA_ROTATION_NONE
}

func (d *vaDriver) flushExecParams(id driver.BufferID, b *vaBuffer) error {
	params, _, err := driver.DecodeExecuteParams(b.shadow)
	if err != nil {
		return err
	}
	if b.execIn != nil {
		C.free(b.execIn)
		b.execIn = nil
	}
	if b.execOut != nil {
		C.free(b.execOut)
		b.execOut = nil
	}
	if len(params.Input) > 0 {
		b.execIn = C.CBytes(params.Input)
	}
	if params.OutputMax > 0 {
		b.execOut = C.malloc(C.size_t(params.OutputMax))
	}
	b.execCap = C.uint32_t(params.OutputMax)

	var p unsafe.Pointer
	if err := vaStatus("vaMapBuffer", C.vaMapBuffer(d.dpy, C.VABufferID(id), &p)); err != nil {
		return err
	}
	exec := (*C.VAProtectedSessionExecuteBuffer)(p)
	C.memset(p, 0, C.sizeof_VAProtectedSessionExecuteBuffer)
	exec.function_id = C.uint32_t(params.FunctionID)
	exec.input.data_size = C.uint32_t(len(params.Input))
	exec.input.data = b.execIn
	exec.output.max_data_size = b.execCap
	exec.output.data = b.execOut
	return vaStatus("vaUnmapBuffer", C.vaUnmapBuffer(d.dpy, C.VABufferID(id)))
}

func (d *vaDriver) DestroyBuffer(id driver.BufferID) error {
	b := d.buffers[id]
	if b == nil {
		return fmt.Errorf("libva: buffer %d: %w", id, driver.ErrInvalidID)
	}
	if b.execIn != nil {
		C.free(b.execIn)
	}
	if b.execOut != nil {
		C.free(b.execOut)
	}
	if b.regions != nil {
		C.free(unsafe.Pointer(b.regions))
	}
	delete(d.buffers, id)
	return vaStatus("vaDestroyBuffer", C.vaDestroyBuffer(d.dpy, C.VABufferID(id)))
}

func (d *vaDriver) BeginPicture(context driver.ContextID, target driver.SurfaceID) error {
	return vaStatus("vaBeginPicture", C.vaBeginPicture(d.dpy, C.VAContextID(context), C.VASurfaceID(target)))
}

func (d *vaDriver) RenderPicture(context driver.ContextID, buffers []driver.BufferID) error {
	va := make([]C.VABufferID, len(buffers))
	for i, id := range buffers {
		va[i] = C.VABufferID(id)
	}
	return vaStatus("vaRenderPicture", C.vaRenderPicture(d.dpy, C.VAContextID(context), &va[0], C.int(len(va))))
}

func (d *vaDriver) EndPicture(context driver.ContextID) error {
	return vaStatus("vaEndPicture", C.vaEndPicture(d.dpy, C.VAContextID(context)))
}

func (d *vaDriver) QueryImageFormats() ([]driver.ImageFormat, error) {
	n := C.vaMaxNumImageFormats(d.dpy)
	buf := make([]C.VAImageFormat, n)
	if err := vaStatus("vaQueryImageFormats", C.vaQueryImageFormats(d.dpy, &buf[0], &n)); err != nil {
		return nil, err
	}
	out := make([]driver.ImageFormat, 0, n)
	for _, f := range buf[:n] {
		out = append(out, driver.ImageFormat{
			FourCC:       driver.FourCC(f.fourcc),
			ByteOrder:    uint32(f.byte_order),
			BitsPerPixel: uint32(f.bits_per_pixel),
		})
	}
	return out, nil
}

func (d *vaDriver) registerImage(img *C.VAImage) *driver.Image {
	d.images[driver.ImageID(img.image_id)] = img
	d.buffers[driver.BufferID(img.buf)] = &vaBuffer{
		typ:  driver.BufferSliceData,
		size: int(img.data_size),
	}
	out := &driver.Image{
		ID: driver.ImageID(img.image_id),
		Format: driver.ImageFormat{
			FourCC:       driver.FourCC(img.format.fourcc),
			ByteOrder:    uint32(img.format.byte_order),
			BitsPerPixel: uint32(img.format.bits_per_pixel),
		},
		Buf:      driver.BufferID(img.buf),
		Width:    uint32(img.width),
		Height:   uint32(img.height),
		DataSize: uint32(img.data_size),
		Planes:   uint32(img.num_planes),
	}
	for i := 0; i < int(img.num_planes) && i < 3; i++ {
		out.Pitches[i] = uint32(img.pitches[i])
		out.Offsets[i] = uint32(img.offsets[i])
	}
	return out
}

func (d *vaDriver) DeriveImage(surface driver.SurfaceID) (*driver.Image, error) {
	img := new(C.VAImage)
	if err := vaStatus("vaDeriveImage", C.vaDeriveImage(d.dpy, C.VASurfaceID(surface), img)); err != nil {
		return nil, err
	}
	return d.registerImage(img), nil
}

func (d *vaDriver) CreateImage(format driver.ImageFormat, width, height uint32) (*driver.Image, error) {
	var f C.VAImageFormat
	f.fourcc = C.uint32_t(format.FourCC)
	f.byte_order = C.uint32_t(format.ByteOrder)
	f.bits_per_pixel = C.uint32_t(format.BitsPerPixel)
	img := new(C.VAImage)
	if err := vaStatus("vaCreateImage", C.vaCreateImage(d.dpy, &f, C.int(width), C.int(height), img)); err != nil {
		return nil, err
	}
	return d.registerImage(img), nil
}

func (d *vaDriver) DestroyImage(id driver.ImageID) error {
	img := d.images[id]
	if img == nil {
		return fmt.Errorf("libva: image %d: %w", id, driver.ErrInvalidID)
	}
	delete(d.buffers, driver.BufferID(img.buf))
	delete(d.images, id)
	return vaStatus("vaDestroyImage", C.vaDestroyImage(d.dpy, img.image_id))
}

func (d *vaDriver) PutImage(surface driver.SurfaceID, image driver.ImageID, width, height uint32) error {
	img := d.images[image]
	if img == nil {
		return fmt.Errorf("libva: image %d: %w", image, driver.ErrInvalidID)
	}
	st := C.vaPutImage(d.dpy, C.VASurfaceID(surface), img.image_id,
		0, 0, C.uint(width), C.uint(height),
		0, 0, C.uint(width), C.uint(height))
	return vaStatus("vaPutImage", st)
}

func (d *vaDriver) QueryPipelineCaps(context driver.ContextID) (driver.PipelineCaps, error) {
	var caps C.VAProcPipelineCaps
	st := C.vaQueryVideoProcPipelineCaps(d.dpy, C.VAContextID(context), nil, 0, &caps)
	if err := vaStatus("vaQueryVideoProcPipelineCaps", st); err != nil {
		return driver.PipelineCaps{}, err
	}
	var out driver.PipelineCaps
	if caps.rotation_flags&(1<<C.VA_ROTATION_90) != 0 {
		out.RotationFlags |= uint32(driver.Rotation90)
	}
	if caps.rotation_flags&(1<<C.VA_ROTATION_180) != 0 {
		out.RotationFlags |= uint32(driver.Rotation180)
	}
	if caps.rotation_flags&(1<<C.VA_ROTATION_270) != 0 {
		out.RotationFlags |= uint32(driver.Rotation270)
	}
	return out, nil
}

func (d *vaDriver) CreateProtectedSession(config driver.ConfigID) (driver.ProtectedSessionID, error) {
	var id C.VAProtectedSessionID
	st := C.vaCreateProtectedSession(d.dpy, C.VAConfigID(config), &id)
	if err := vaStatus("vaCreateProtectedSession", st); err != nil {
		return driver.InvalidProtectedSession, err
	}
	return driver.ProtectedSessionID(id), nil
}

func (d *vaDriver) DestroyProtectedSession(id driver.ProtectedSessionID) error {
	return vaStatus("vaDestroyProtectedSession", C.vaDestroyProtectedSession(d.dpy, C.VAProtectedSessionID(id)))
}

func (d *vaDriver) AttachProtectedSession(context driver.ContextID, session driver.ProtectedSessionID) error {
	return vaStatus("vaAttachProtectedSession", C.vaAttachProtectedSession(d.dpy, C.VAContextID(context), C.VAProtectedSessionID(session)))
}

func (d *vaDriver) DetachProtectedSession(context driver.ContextID) error {
	return vaStatus("vaDetachProtectedSession", C.vaDetachProtectedSession(d.dpy, C.VAContextID(context)))
}

func (d *vaDriver) ProtectedExecute(session driver.ProtectedSessionID, buf driver.BufferID) error {
	return vaStatus("vaProtectedSessionExecute", C.vaProtectedSessionExecute(d.dpy, C.VAProtectedSessionID(session), C.VABufferID(buf)))
}
