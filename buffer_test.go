package hwaccel

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/gogpu/hwaccel/driver"
	"github.com/gogpu/hwaccel/driver/fake"
)

func TestSubmitBuffer(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	payload := []byte{1, 2, 3, 4}
	if err := s.SubmitBuffer(driver.BufferSliceData, payload); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.PendingBuffers() != 1 {
		t.Fatalf("%d pending, want 1", s.PendingBuffers())
	}
	if got := f.BufferBytes(s.pending[0]); !bytes.Equal(got, payload) {
		t.Errorf("buffer holds %v, want %v", got, payload)
	}
}

func TestSubmitBufferNilPayload(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	if err := s.SubmitBuffer(driver.BufferSliceData, nil); err == nil {
		t.Fatal("nil payload accepted")
	}
	if s.PendingBuffers() != 0 {
		t.Errorf("%d pending after failure", s.PendingBuffers())
	}

	// Empty but non-nil is legal.
	if err := s.SubmitBuffer(driver.BufferSliceData, []byte{}); err != nil {
		t.Fatalf("empty payload rejected: %v", err)
	}
}

func TestSubmitFailureDestroysWholeQueue(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	if err := s.SubmitBuffer(driver.BufferPictureParameter, []byte{1}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	f.Fail["CreateBuffer"] = driver.ErrAllocationFailed
	err := s.SubmitBuffer(driver.BufferSliceData, []byte{2})
	delete(f.Fail, "CreateBuffer")
	if !errors.Is(err, driver.ErrAllocationFailed) {
		t.Fatalf("error %v, want ErrAllocationFailed", err)
	}

	// Not just the failed buffer: the earlier one goes too.
	if s.PendingBuffers() != 0 {
		t.Errorf("%d pending, want 0", s.PendingBuffers())
	}
	if _, _, _, buffers, _ := f.Live(); buffers != 0 {
		t.Errorf("%d buffers live", buffers)
	}
}

func TestSubmitBuffersMidBatchFailure(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	err := s.SubmitBuffers([]BufferDescriptor{
		{Type: driver.BufferPictureParameter, Data: []byte{1}},
		{Type: driver.BufferSliceData, Data: nil},
	})
	if err == nil {
		t.Fatal("batch with nil payload accepted")
	}
	if s.PendingBuffers() != 0 {
		t.Errorf("%d pending", s.PendingBuffers())
	}
	if _, _, _, buffers, _ := f.Live(); buffers != 0 {
		t.Errorf("%d buffers live", buffers)
	}
}

func TestExecuteAndDestroyPendingBuffers(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateContextAndSurfaces(driver.RTFormatYUV420, image.Pt(640, 480),
		UsageHintDecoder, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SubmitBuffers([]BufferDescriptor{
		{Type: driver.BufferPictureParameter, Data: []byte{1}},
		{Type: driver.BufferSliceData, Data: []byte{2, 3}},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	queued := append([]driver.BufferID(nil), s.pending...)

	if err := s.ExecuteAndDestroyPendingBuffers(ids[0]); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(f.BeginTargets) != 1 || f.BeginTargets[0] != ids[0] {
		t.Errorf("begin targets %v, want [%d]", f.BeginTargets, ids[0])
	}
	if len(f.Rendered) != 1 {
		t.Fatalf("%d renders, want 1", len(f.Rendered))
	}
	if got := f.Rendered[0]; len(got) != 2 || got[0] != queued[0] || got[1] != queued[1] {
		t.Errorf("rendered %v, want %v", got, queued)
	}
	if f.Ended != 1 {
		t.Errorf("%d end pictures, want 1", f.Ended)
	}
	if s.PendingBuffers() != 0 {
		t.Errorf("%d pending after execute", s.PendingBuffers())
	}
	if _, _, _, buffers, _ := f.Live(); buffers != 0 {
		t.Errorf("%d buffers live after execute", buffers)
	}
}

func TestExecuteEmptyBatch(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateContextAndSurfaces(driver.RTFormatYUV420, image.Pt(640, 480),
		UsageHintDecoder, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.ExecuteAndDestroyPendingBuffers(ids[0]); err != nil {
		t.Fatalf("empty execute: %v", err)
	}
	// The transaction still brackets, but nothing is rendered.
	if f.Ended != 1 || len(f.Rendered) != 0 {
		t.Errorf("ended %d, rendered %v", f.Ended, f.Rendered)
	}
}

func TestExecuteWithoutContextPanics(t *testing.T) {
	s := newTestSession(t, fake.New(), ModeDecode, driver.ProfileH264Main)
	mustPanic(t, func() { s.ExecuteAndDestroyPendingBuffers(1) })
}

func TestExecuteFailureStillDestroysQueue(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateContextAndSurfaces(driver.RTFormatYUV420, image.Pt(640, 480),
		UsageHintDecoder, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SubmitBuffer(driver.BufferSliceData, []byte{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.Fail["BeginPicture"] = driver.ErrOperationFailed
	err = s.ExecuteAndDestroyPendingBuffers(ids[0])
	delete(f.Fail, "BeginPicture")
	if !errors.Is(err, driver.ErrOperationFailed) {
		t.Fatalf("error %v", err)
	}
	if s.PendingBuffers() != 0 {
		t.Errorf("%d pending after failed execute", s.PendingBuffers())
	}
}

func TestOwnedBuffer(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	b, err := s.CreateBuffer(driver.BufferEncCodedOutput, 8)
	if err != nil {
		t.Fatalf("create buffer: %v", err)
	}
	if b.Type() != driver.BufferEncCodedOutput || b.Size() != 8 {
		t.Errorf("buffer (%v, %d)", b.Type(), b.Size())
	}

	if err := b.Write([]byte{9, 8, 7}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := f.BufferBytes(b.ID()); !bytes.Equal(got[:3], []byte{9, 8, 7}) {
		t.Errorf("buffer holds %v", got)
	}

	if err := b.Write(make([]byte, 9)); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("oversized write error %v, want ErrBufferTooSmall", err)
	}

	b.Close()
	b.Close() // idempotent
	if _, _, _, buffers, _ := f.Live(); buffers != 0 {
		t.Errorf("%d buffers live after close", buffers)
	}
}

func TestMapAndCopyAndExecute(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateContextAndSurfaces(driver.RTFormatYUV420, image.Pt(640, 480),
		UsageHintDecoder, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b1, err := s.CreateBuffer(driver.BufferPictureParameter, 4)
	if err != nil {
		t.Fatalf("create buffer: %v", err)
	}
	b2, err := s.CreateBuffer(driver.BufferSliceData, 4)
	if err != nil {
		t.Fatalf("create buffer: %v", err)
	}

	if err := s.MapAndCopyAndExecute(ids[0], []BufferCopy{
		{ID: b1.ID(), Data: []byte{1, 1}},
		{ID: b2.ID(), Data: []byte{2, 2}},
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := f.Rendered[len(f.Rendered)-1]; len(got) != 2 || got[0] != b1.ID() || got[1] != b2.ID() {
		t.Errorf("rendered %v", got)
	}

	// The buffers belong to the caller and survive for the next frame.
	if _, ok := f.BufferType(b1.ID()); !ok {
		t.Error("caller-owned buffer destroyed by execute")
	}
	b1.Close()
	b2.Close()
}

func TestEncodedChunkSize(t *testing.T) {
	f := encodeFake()
	s := newTestSession(t, f, ModeEncodeConstantBitrate, driver.ProfileH264Main)

	b, err := s.CreateBuffer(driver.BufferEncCodedOutput, 64)
	if err != nil {
		t.Fatalf("create buffer: %v", err)
	}
	defer b.Close()
	f.Coded[b.ID()] = []driver.CodedSegment{
		{Data: []byte{1, 2, 3}},
		{Data: []byte{4, 5, 6, 7, 8}},
	}

	n, err := s.EncodedChunkSize(b.ID(), 7)
	if err != nil {
		t.Fatalf("chunk size: %v", err)
	}
	if n != 8 {
		t.Errorf("chunk size %d, want 8", n)
	}
	if len(f.Synced) != 1 || f.Synced[0] != 7 {
		t.Errorf("synced %v, want the source surface", f.Synced)
	}
}

func TestDownloadFromBuffer(t *testing.T) {
	f := encodeFake()
	s := newTestSession(t, f, ModeEncodeConstantBitrate, driver.ProfileH264Main)

	b, err := s.CreateBuffer(driver.BufferEncCodedOutput, 64)
	if err != nil {
		t.Fatalf("create buffer: %v", err)
	}
	defer b.Close()
	f.Coded[b.ID()] = []driver.CodedSegment{
		{Data: []byte{1, 2, 3}},
		{Data: []byte{4, 5}},
	}

	dst := make([]byte, 5)
	n, err := s.DownloadFromBuffer(b.ID(), 7, dst)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != 5 || !bytes.Equal(dst, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("downloaded %d bytes %v", n, dst)
	}
	if f.Calls["SyncSurface"] == 0 {
		t.Error("surface not synced before the map")
	}

	// A segment that does not fit fails cleanly.
	_, err = s.DownloadFromBuffer(b.ID(), 7, make([]byte, 4))
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("error %v, want ErrBufferTooSmall", err)
	}
}

func TestDownloadSkipsSyncOnIntel(t *testing.T) {
	f := encodeFake()
	f.Vendor = "Intel iHD driver for Intel(R) Gen Graphics - 22.1.1 ()"
	s := newTestSession(t, f, ModeEncodeConstantBitrate, driver.ProfileH264Main)

	b, err := s.CreateBuffer(driver.BufferEncCodedOutput, 64)
	if err != nil {
		t.Fatalf("create buffer: %v", err)
	}
	defer b.Close()
	f.Coded[b.ID()] = []driver.CodedSegment{{Data: []byte{1}}}

	if _, err := s.DownloadFromBuffer(b.ID(), 7, make([]byte, 4)); err != nil {
		t.Fatalf("download: %v", err)
	}
	// Mapping is the sync on Intel.
	if f.Calls["SyncSurface"] != 0 {
		t.Errorf("SyncSurface called %d times on Intel", f.Calls["SyncSurface"])
	}
}
