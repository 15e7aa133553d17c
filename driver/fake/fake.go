// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fake provides a scripted in-memory driver.Driver for tests.
//
// The zero value is not usable; call New for a driver with a plausible
// capability set. Tests adjust the exported fields to script behavior and
// inspect Calls and the recorded submission state afterwards.
package fake

import (
	"fmt"

	"github.com/gogpu/hwaccel/driver"
)

// Driver is a scripted driver.Driver. It allocates real ids, keeps byte
// slices behind buffers, and records every call. Not safe for concurrent
// use, same as the real thing.
type Driver struct {
	// Scripted capability surface.
	Vendor       string
	Major, Minor int
	Profiles     []driver.Profile
	Entrypoints  map[driver.Profile][]driver.Entrypoint
	AttribValues map[driver.ConfigAttribType]uint32
	Constraints  driver.SurfaceConstraints
	Formats      []driver.ImageFormat
	Caps         driver.PipelineCaps

	// DeriveErr is returned by DeriveImage when set (commonly
	// driver.ErrOperationFailed to exercise the create+put fallback).
	DeriveErr error

	// Export is returned by ExportSurfaceHandle when set.
	Export *driver.SurfaceDescriptor

	// Coded maps encode-output buffers to their segment chains.
	Coded map[driver.BufferID][]driver.CodedSegment

	// TEE handles protected execute calls. If nil, execute returns an
	// empty output.
	TEE func(p driver.ExecuteParams) ([]byte, error)

	// Fail injects an error for the named method on every call until
	// cleared.
	Fail map[string]error

	// Calls counts invocations per method name.
	Calls map[string]int

	// Recorded submission state.
	BeginTargets []driver.SurfaceID
	Rendered     [][]driver.BufferID
	Ended        int
	Synced       []driver.SurfaceID
	Attached     []driver.ProtectedSessionID
	Detached     int

	// Recorded allocation arguments.
	SurfaceHints   []driver.UsageHint
	SurfaceFourCCs []driver.FourCC
	ImportedFormat driver.RTFormat
	ImportedDesc   *driver.ExternalBufferDescriptor

	open   bool
	nextID uint32

	surfaces  map[driver.SurfaceID]bool
	contexts  map[driver.ContextID]bool
	configs   map[driver.ConfigID]configState
	buffers   map[driver.BufferID]*bufferState
	images    map[driver.ImageID]*driver.Image
	sessions  map[driver.ProtectedSessionID]bool
	attachTo  map[driver.ContextID]driver.ProtectedSessionID
	destroyed struct {
		Surfaces []driver.SurfaceID
		Buffers  []driver.BufferID
	}
}

type configState struct {
	profile    driver.Profile
	entrypoint driver.Entrypoint
	attribs    []driver.ConfigAttrib
}

type bufferState struct {
	typ     driver.BufferType
	context driver.ContextID
	data    []byte
	mapped  bool
}

// New returns a fake with a plausible default capability set: one decode
// profile, one encode profile, video processing, NV12 and I420 images, and
// 16x16 through 4096x4096 surfaces.
func New() *Driver {
	return &Driver{
		Vendor: "fake driver 1.0",
		Major:  1, Minor: 22,
		Profiles: []driver.Profile{
			driver.ProfileH264Main,
			driver.ProfileVP9Profile0,
			driver.ProfileVideoProc,
		},
		Entrypoints: map[driver.Profile][]driver.Entrypoint{
			driver.ProfileH264Main:    {driver.EntrypointVLD, driver.EntrypointEncSlice},
			driver.ProfileVP9Profile0: {driver.EntrypointVLD},
			driver.ProfileVideoProc:   {driver.EntrypointVideoProc},
		},
		AttribValues: map[driver.ConfigAttribType]uint32{
			driver.ConfigAttribRTFormat: uint32(driver.RTFormatYUV420),
		},
		Constraints: driver.SurfaceConstraints{
			MinWidth: 16, MinHeight: 16,
			MaxWidth: 4096, MaxHeight: 4096,
			PixelFormats: []driver.FourCC{driver.FourCCNV12, driver.FourCCI420},
		},
		Formats: []driver.ImageFormat{
			{FourCC: driver.FourCCNV12, BitsPerPixel: 12},
			{FourCC: driver.FourCCI420, BitsPerPixel: 12},
		},
		Caps: driver.PipelineCaps{RotationFlags: uint32(driver.Rotation90 | driver.Rotation180 | driver.Rotation270)},

		Fail:  make(map[string]error),
		Calls: make(map[string]int),

		surfaces: make(map[driver.SurfaceID]bool),
		contexts: make(map[driver.ContextID]bool),
		configs:  make(map[driver.ConfigID]configState),
		buffers:  make(map[driver.BufferID]*bufferState),
		images:   make(map[driver.ImageID]*driver.Image),
		sessions: make(map[driver.ProtectedSessionID]bool),
		attachTo: make(map[driver.ContextID]driver.ProtectedSessionID),
		Coded:    make(map[driver.BufferID][]driver.CodedSegment),
	}
}

func (d *Driver) call(name string) error {
	d.Calls[name]++
	return d.Fail[name]
}

func (d *Driver) id() uint32 {
	d.nextID++
	return d.nextID
}

// Live reports how many surfaces, contexts, configs, buffers and protected
// sessions are currently allocated. Tests use it for leak checks.
func (d *Driver) Live() (surfaces, contexts, configs, buffers, sessions int) {
	return len(d.surfaces), len(d.contexts), len(d.configs), len(d.buffers), len(d.sessions)
}

// DestroyedSurfaces returns every surface id passed to DestroySurfaces, in
// order.
func (d *Driver) DestroyedSurfaces() []driver.SurfaceID { return d.destroyed.Surfaces }

// DestroyedBuffers returns every buffer id passed to DestroyBuffer, in order.
func (d *Driver) DestroyedBuffers() []driver.BufferID { return d.destroyed.Buffers }

// BufferBytes returns the current contents of a live buffer.
func (d *Driver) BufferBytes(id driver.BufferID) []byte {
	if b := d.buffers[id]; b != nil {
		return b.data
	}
	return nil
}

// BufferType returns the type a live buffer was created with.
func (d *Driver) BufferType(id driver.BufferID) (driver.BufferType, bool) {
	if b := d.buffers[id]; b != nil {
		return b.typ, true
	}
	return 0, false
}

// BufferContext returns the context (or protected session id) a live buffer
// was created against.
func (d *Driver) BufferContext(id driver.BufferID) (driver.ContextID, bool) {
	if b := d.buffers[id]; b != nil {
		return b.context, true
	}
	return 0, false
}

// ConfigAttribsFor returns the attributes of the first live config created
// for a profile, or nil.
func (d *Driver) ConfigAttribsFor(p driver.Profile) []driver.ConfigAttrib {
	for _, cs := range d.configs {
		if cs.profile == p {
			return cs.attribs
		}
	}
	return nil
}

// AttachedTo returns the protected session attached to a context, if any.
func (d *Driver) AttachedTo(ctx driver.ContextID) (driver.ProtectedSessionID, bool) {
	s, ok := d.attachTo[ctx]
	return s, ok
}

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Open(fd int) (int, int, error) {
	if err := d.call("Open"); err != nil {
		return 0, 0, err
	}
	d.open = true
	return d.Major, d.Minor, nil
}

func (d *Driver) Close() error {
	if err := d.call("Close"); err != nil {
		return err
	}
	if !d.open {
		return fmt.Errorf("fake: close of unopened driver")
	}
	d.open = false
	return nil
}

func (d *Driver) VendorString() string { return d.Vendor }

func (d *Driver) QueryProfiles() ([]driver.Profile, error) {
	if err := d.call("QueryProfiles"); err != nil {
		return nil, err
	}
	return append([]driver.Profile(nil), d.Profiles...), nil
}

func (d *Driver) QueryEntrypoints(p driver.Profile) ([]driver.Entrypoint, error) {
	if err := d.call("QueryEntrypoints"); err != nil {
		return nil, err
	}
	return append([]driver.Entrypoint(nil), d.Entrypoints[p]...), nil
}

func (d *Driver) GetConfigAttributes(p driver.Profile, e driver.Entrypoint, attribs []driver.ConfigAttrib) error {
	if err := d.call("GetConfigAttributes"); err != nil {
		return err
	}
	for i := range attribs {
		if v, ok := d.AttribValues[attribs[i].Type]; ok {
			attribs[i].Value = v
		} else {
			attribs[i].Value = driver.AttribNotSupported
		}
	}
	return nil
}

func (d *Driver) CreateConfig(p driver.Profile, e driver.Entrypoint, attribs []driver.ConfigAttrib) (driver.ConfigID, error) {
	if err := d.call("CreateConfig"); err != nil {
		return driver.InvalidConfig, err
	}
	id := driver.ConfigID(d.id())
	d.configs[id] = configState{profile: p, entrypoint: e, attribs: append([]driver.ConfigAttrib(nil), attribs...)}
	return id, nil
}

func (d *Driver) DestroyConfig(id driver.ConfigID) error {
	if err := d.call("DestroyConfig"); err != nil {
		return err
	}
	if !hasKey(d.configs, id) {
		return driver.ErrInvalidID
	}
	delete(d.configs, id)
	return nil
}

func (d *Driver) QueryConfigAttributes(id driver.ConfigID) ([]driver.ConfigAttrib, error) {
	if err := d.call("QueryConfigAttributes"); err != nil {
		return nil, err
	}
	c, ok := d.configs[id]
	if !ok {
		return nil, driver.ErrInvalidID
	}
	out := append([]driver.ConfigAttrib(nil), c.attribs...)
	out = append(out, driver.ConfigAttrib{Type: driver.ConfigAttribRTFormat, Value: d.AttribValues[driver.ConfigAttribRTFormat]})
	return out, nil
}

func (d *Driver) QuerySurfaceAttributes(id driver.ConfigID) (driver.SurfaceConstraints, error) {
	if err := d.call("QuerySurfaceAttributes"); err != nil {
		return driver.SurfaceConstraints{}, err
	}
	if !hasKey(d.configs, id) {
		return driver.SurfaceConstraints{}, driver.ErrInvalidID
	}
	return d.Constraints, nil
}

func (d *Driver) CreateSurfaces(format driver.RTFormat, w, h uint32, count int, hints driver.UsageHint, fourcc driver.FourCC) ([]driver.SurfaceID, error) {
	if err := d.call("CreateSurfaces"); err != nil {
		return nil, err
	}
	d.SurfaceHints = append(d.SurfaceHints, hints)
	d.SurfaceFourCCs = append(d.SurfaceFourCCs, fourcc)
	ids := make([]driver.SurfaceID, count)
	for i := range ids {
		ids[i] = driver.SurfaceID(d.id())
		d.surfaces[ids[i]] = true
	}
	return ids, nil
}

func (d *Driver) ImportSurface(format driver.RTFormat, desc *driver.ExternalBufferDescriptor) (driver.SurfaceID, error) {
	if err := d.call("ImportSurface"); err != nil {
		return driver.InvalidSurface, err
	}
	d.ImportedFormat = format
	d.ImportedDesc = desc
	id := driver.SurfaceID(d.id())
	d.surfaces[id] = true
	return id, nil
}

func (d *Driver) DestroySurfaces(ids []driver.SurfaceID) error {
	if err := d.call("DestroySurfaces"); err != nil {
		return err
	}
	for _, id := range ids {
		if !d.surfaces[id] {
			return driver.ErrInvalidID
		}
		delete(d.surfaces, id)
		d.destroyed.Surfaces = append(d.destroyed.Surfaces, id)
	}
	return nil
}

func (d *Driver) SyncSurface(id driver.SurfaceID) error {
	if err := d.call("SyncSurface"); err != nil {
		return err
	}
	d.Synced = append(d.Synced, id)
	return nil
}

func (d *Driver) ExportSurfaceHandle(id driver.SurfaceID) (*driver.SurfaceDescriptor, error) {
	if err := d.call("ExportSurfaceHandle"); err != nil {
		return nil, err
	}
	if d.Export == nil {
		return nil, driver.ErrOperationFailed
	}
	cp := *d.Export
	return &cp, nil
}

func (d *Driver) CreateContext(config driver.ConfigID, w, h uint32, flags driver.ContextFlag) (driver.ContextID, error) {
	if err := d.call("CreateContext"); err != nil {
		return driver.InvalidContext, err
	}
	if !hasKey(d.configs, config) {
		return driver.InvalidContext, driver.ErrInvalidID
	}
	id := driver.ContextID(d.id())
	d.contexts[id] = true
	return id, nil
}

func (d *Driver) DestroyContext(id driver.ContextID) error {
	if err := d.call("DestroyContext"); err != nil {
		return err
	}
	if !d.contexts[id] {
		return driver.ErrInvalidID
	}
	delete(d.contexts, id)
	delete(d.attachTo, id)
	return nil
}

func (d *Driver) CreateBuffer(context driver.ContextID, typ driver.BufferType, size int) (driver.BufferID, error) {
	if err := d.call("CreateBuffer"); err != nil {
		return driver.InvalidBuffer, err
	}
	id := driver.BufferID(d.id())
	d.buffers[id] = &bufferState{typ: typ, context: context, data: make([]byte, size)}
	return id, nil
}

func (d *Driver) MapBuffer(id driver.BufferID) ([]byte, error) {
	if err := d.call("MapBuffer"); err != nil {
		return nil, err
	}
	b, ok := d.buffers[id]
	if !ok {
		return nil, driver.ErrInvalidID
	}
	b.mapped = true
	return b.data, nil
}

func (d *Driver) MapCodedBuffer(id driver.BufferID) ([]driver.CodedSegment, error) {
	if err := d.call("MapCodedBuffer"); err != nil {
		return nil, err
	}
	b, ok := d.buffers[id]
	if !ok {
		return nil, driver.ErrInvalidID
	}
	b.mapped = true
	return d.Coded[id], nil
}

func (d *Driver) UnmapBuffer(id driver.BufferID) error {
	if err := d.call("UnmapBuffer"); err != nil {
		return err
	}
	b, ok := d.buffers[id]
	if !ok {
		return driver.ErrInvalidID
	}
	b.mapped = false
	return nil
}

func (d *Driver) DestroyBuffer(id driver.BufferID) error {
	if err := d.call("DestroyBuffer"); err != nil {
		return err
	}
	if !hasKey(d.buffers, id) {
		return driver.ErrInvalidID
	}
	delete(d.buffers, id)
	d.destroyed.Buffers = append(d.destroyed.Buffers, id)
	return nil
}

func (d *Driver) BeginPicture(context driver.ContextID, target driver.SurfaceID) error {
	if err := d.call("BeginPicture"); err != nil {
		return err
	}
	d.BeginTargets = append(d.BeginTargets, target)
	return nil
}

func (d *Driver) RenderPicture(context driver.ContextID, buffers []driver.BufferID) error {
	if err := d.call("RenderPicture"); err != nil {
		return err
	}
	d.Rendered = append(d.Rendered, append([]driver.BufferID(nil), buffers...))
	return nil
}

func (d *Driver) EndPicture(context driver.ContextID) error {
	if err := d.call("EndPicture"); err != nil {
		return err
	}
	d.Ended++
	return nil
}

func (d *Driver) QueryImageFormats() ([]driver.ImageFormat, error) {
	if err := d.call("QueryImageFormats"); err != nil {
		return nil, err
	}
	return append([]driver.ImageFormat(nil), d.Formats...), nil
}

func (d *Driver) newImage(format driver.ImageFormat, w, h uint32) *driver.Image {
	// NV12-shaped layout: full-res luma plane plus interleaved half-res
	// chroma plane, both with pitch == width.
	img := &driver.Image{
		ID:     driver.ImageID(d.id()),
		Format: format,
		Width:  w, Height: h,
		Planes:   2,
		Pitches:  [3]uint32{w, w, 0},
		Offsets:  [3]uint32{0, w * h, 0},
		DataSize: w*h + w*h/2,
	}
	buf := driver.BufferID(d.id())
	d.buffers[buf] = &bufferState{typ: driver.BufferSliceData, data: make([]byte, img.DataSize)}
	img.Buf = buf
	d.images[img.ID] = img
	return img
}

func (d *Driver) DeriveImage(surface driver.SurfaceID) (*driver.Image, error) {
	if err := d.call("DeriveImage"); err != nil {
		return nil, err
	}
	if d.DeriveErr != nil {
		return nil, d.DeriveErr
	}
	if !d.surfaces[surface] {
		return nil, driver.ErrInvalidID
	}
	c := d.Constraints
	return d.newImage(driver.ImageFormat{FourCC: driver.FourCCNV12, BitsPerPixel: 12}, c.MaxWidth, c.MaxHeight), nil
}

func (d *Driver) CreateImage(format driver.ImageFormat, w, h uint32) (*driver.Image, error) {
	if err := d.call("CreateImage"); err != nil {
		return nil, err
	}
	return d.newImage(format, w, h), nil
}

func (d *Driver) DestroyImage(id driver.ImageID) error {
	if err := d.call("DestroyImage"); err != nil {
		return err
	}
	img, ok := d.images[id]
	if !ok {
		return driver.ErrInvalidID
	}
	delete(d.buffers, img.Buf)
	delete(d.images, id)
	return nil
}

func (d *Driver) PutImage(surface driver.SurfaceID, image driver.ImageID, w, h uint32) error {
	if err := d.call("PutImage"); err != nil {
		return err
	}
	if !d.surfaces[surface] {
		return driver.ErrInvalidID
	}
	if !hasKey(d.images, image) {
		return driver.ErrInvalidID
	}
	return nil
}

func (d *Driver) QueryPipelineCaps(context driver.ContextID) (driver.PipelineCaps, error) {
	if err := d.call("QueryPipelineCaps"); err != nil {
		return driver.PipelineCaps{}, err
	}
	return d.Caps, nil
}

func (d *Driver) CreateProtectedSession(config driver.ConfigID) (driver.ProtectedSessionID, error) {
	if err := d.call("CreateProtectedSession"); err != nil {
		return driver.InvalidProtectedSession, err
	}
	if !hasKey(d.configs, config) {
		return driver.InvalidProtectedSession, driver.ErrInvalidID
	}
	id := driver.ProtectedSessionID(d.id())
	d.sessions[id] = true
	return id, nil
}

func (d *Driver) DestroyProtectedSession(id driver.ProtectedSessionID) error {
	if err := d.call("DestroyProtectedSession"); err != nil {
		return err
	}
	if !d.sessions[id] {
		return driver.ErrInvalidID
	}
	delete(d.sessions, id)
	return nil
}

func (d *Driver) AttachProtectedSession(context driver.ContextID, session driver.ProtectedSessionID) error {
	if err := d.call("AttachProtectedSession"); err != nil {
		return err
	}
	if _, busy := d.attachTo[context]; busy {
		return driver.ErrOperationFailed
	}
	d.attachTo[context] = session
	d.Attached = append(d.Attached, session)
	return nil
}

func (d *Driver) DetachProtectedSession(context driver.ContextID) error {
	if err := d.call("DetachProtectedSession"); err != nil {
		return err
	}
	delete(d.attachTo, context)
	d.Detached++
	return nil
}

func (d *Driver) ProtectedExecute(session driver.ProtectedSessionID, buf driver.BufferID) error {
	if err := d.call("ProtectedExecute"); err != nil {
		return err
	}
	b, ok := d.buffers[buf]
	if !ok {
		return driver.ErrInvalidID
	}
	p, _, err := driver.DecodeExecuteParams(b.data)
	if err != nil {
		return err
	}
	var out []byte
	if d.TEE != nil {
		out, err = d.TEE(p)
		if err != nil {
			return err
		}
	}
	return driver.SetExecuteOutput(b.data, out)
}

func hasKey[K comparable, V any](m map[K]V, k K) bool {
	_, ok := m[k]
	return ok
}
