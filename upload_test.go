package hwaccel

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/hwaccel/driver"
	"github.com/gogpu/hwaccel/driver/fake"
)

// uploadFake keeps the derived image small.
func uploadFake() *fake.Driver {
	f := fake.New()
	f.Constraints.MaxWidth, f.Constraints.MaxHeight = 128, 128
	return f
}

func testFrameNV12(size image.Point) *Frame {
	return NV12Frame(size,
		make([]byte, size.X*size.Y), size.X,
		make([]byte, size.X*size.Y/2), size.X)
}

func TestUploadFrameDerivedPath(t *testing.T) {
	f := uploadFake()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateSurfaces(driver.RTFormatYUV420, image.Pt(64, 64), UsageHintGeneric, 1)
	if err != nil {
		t.Fatalf("create surfaces: %v", err)
	}
	surface := Surface{ID: ids[0], Size: image.Pt(64, 64)}

	if err := s.UploadFrameToSurface(testFrameNV12(image.Pt(64, 64)), surface); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if f.Calls["DeriveImage"] != 1 || f.Calls["CreateImage"] != 0 {
		t.Errorf("derive/create called %d/%d times, want 1/0",
			f.Calls["DeriveImage"], f.Calls["CreateImage"])
	}
	// Derived images write through; no explicit put.
	if f.Calls["PutImage"] != 0 {
		t.Errorf("PutImage called %d times on the derived path", f.Calls["PutImage"])
	}
	if _, _, _, buffers, _ := f.Live(); buffers != 0 {
		t.Errorf("%d buffers live after upload", buffers)
	}
}

func TestUploadFrameStagingFallback(t *testing.T) {
	f := uploadFake()
	f.DeriveErr = driver.ErrOperationFailed
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateSurfaces(driver.RTFormatYUV420, image.Pt(64, 64), UsageHintGeneric, 1)
	if err != nil {
		t.Fatalf("create surfaces: %v", err)
	}
	surface := Surface{ID: ids[0], Size: image.Pt(64, 64)}

	if err := s.UploadFrameToSurface(testFrameNV12(image.Pt(64, 64)), surface); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if f.Calls["CreateImage"] != 1 || f.Calls["PutImage"] != 1 {
		t.Errorf("create/put called %d/%d times, want 1/1",
			f.Calls["CreateImage"], f.Calls["PutImage"])
	}
}

func TestUploadFrameHardDeriveErrorFails(t *testing.T) {
	f := uploadFake()
	f.DeriveErr = driver.ErrInvalidID
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	err := s.UploadFrameToSurface(testFrameNV12(image.Pt(64, 64)), Surface{ID: 1, Size: image.Pt(64, 64)})
	if err == nil {
		t.Fatal("hard derive error swallowed")
	}
	// Only ErrOperationFailed means "use the staging path".
	if f.Calls["CreateImage"] != 0 {
		t.Error("staging image created after a hard failure")
	}
}

func TestUploadFrameRejectsOddSize(t *testing.T) {
	s := newTestSession(t, uploadFake(), ModeDecode, driver.ProfileH264Main)
	err := s.UploadFrameToSurface(testFrameNV12(image.Pt(63, 64)), Surface{ID: 1})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error %v, want ErrUnsupported", err)
	}
}

func TestUploadFrameRejectsPackedFormats(t *testing.T) {
	s := newTestSession(t, uploadFake(), ModeDecode, driver.ProfileH264Main)
	frame := &Frame{Format: driver.FourCCYUY2, Size: image.Pt(64, 64)}
	err := s.UploadFrameToSurface(frame, Surface{ID: 1})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error %v, want ErrUnsupported", err)
	}
}

func TestFrameFromYCbCr(t *testing.T) {
	img := image.NewYCbCr(image.Rect(0, 0, 64, 32), image.YCbCrSubsampleRatio420)
	frame, err := FrameFromYCbCr(img)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if frame.Format != driver.FourCCI420 || frame.Size != image.Pt(64, 32) {
		t.Errorf("frame (%v, %v)", frame.Format, frame.Size)
	}
	if &frame.Y[0] != &img.Y[0] {
		t.Error("luma plane copied, want shared")
	}

	if _, err := FrameFromYCbCr(image.NewYCbCr(image.Rect(0, 0, 64, 32),
		image.YCbCrSubsampleRatio422)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("4:2:2 error %v, want ErrUnsupported", err)
	}
}

func TestCopyFrameToNV12(t *testing.T) {
	frame := &Frame{
		Format:  driver.FourCCI420,
		Size:    image.Pt(4, 4),
		Y:       []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		YStride: 4,
		U:       []byte{0xa0, 0xa1, 0xa2, 0xa3},
		UStride: 2,
		V:       []byte{0xb0, 0xb1, 0xb2, 0xb3},
		VStride: 2,
	}
	img := &driver.Image{
		Width: 4, Height: 4,
		Planes:  2,
		Pitches: [3]uint32{8, 8, 0},
		Offsets: [3]uint32{0, 32, 0},
	}
	dst := make([]byte, 48)
	for i := range dst {
		dst[i] = 0xff // stale padding must be cleared
	}

	if err := copyFrameToNV12(frame, img, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}

	wantLuma := []byte{1, 2, 3, 4, 0, 0, 0, 0}
	for i, b := range wantLuma {
		if dst[i] != b {
			t.Fatalf("luma row 0 = %v, want %v", dst[:8], wantLuma)
		}
	}
	wantChroma := []byte{0xa0, 0xb0, 0xa1, 0xb1, 0, 0, 0, 0}
	for i, b := range wantChroma {
		if dst[32+i] != b {
			t.Fatalf("chroma row 0 = %v, want %v", dst[32:40], wantChroma)
		}
	}

	if err := copyFrameToNV12(frame, img, make([]byte, 40)); err == nil {
		t.Error("undersized image buffer accepted")
	}
}
