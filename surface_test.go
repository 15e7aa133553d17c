package hwaccel

import (
	"image"
	"testing"

	"github.com/gogpu/hwaccel/driver"
	"github.com/gogpu/hwaccel/driver/fake"
)

func TestCreateContextAndSurfaces(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateContextAndSurfaces(driver.RTFormatYUV420, image.Pt(640, 480),
		UsageHintDecoder, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("%d surfaces, want 4", len(ids))
	}
	if !s.HasContext() {
		t.Fatal("context missing")
	}

	s.DestroyContextAndSurfaces(ids)
	surfaces, contexts, _, _, _ := f.Live()
	if surfaces != 0 || contexts != 0 {
		t.Errorf("%d surfaces, %d contexts live after teardown", surfaces, contexts)
	}
}

func TestCreateContextAndSurfacesRollback(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	f.Fail["CreateContext"] = driver.ErrOperationFailed
	_, err := s.CreateContextAndSurfaces(driver.RTFormatYUV420, image.Pt(640, 480),
		UsageHintDecoder, 2)
	delete(f.Fail, "CreateContext")
	if err == nil {
		t.Fatal("create succeeded despite context failure")
	}

	// The surfaces allocated before the failure must be gone again.
	if surfaces, _, _, _, _ := f.Live(); surfaces != 0 {
		t.Errorf("%d surfaces leaked by the rollback", surfaces)
	}
	if s.HasContext() {
		t.Error("context present after failure")
	}
}

func TestDestroySurfacesFiltersInvalid(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateSurfaces(driver.RTFormatYUV420, image.Pt(64, 64), UsageHintGeneric, 1)
	if err != nil {
		t.Fatalf("create surfaces: %v", err)
	}

	// An already-invalidated entry must not reach the driver; the fake
	// errors on unknown ids.
	s.DestroySurfaces([]driver.SurfaceID{driver.InvalidSurface, ids[0], driver.InvalidSurface})
	if surfaces, _, _, _, _ := f.Live(); surfaces != 0 {
		t.Errorf("%d surfaces live", surfaces)
	}

	before := f.Calls["DestroySurfaces"]
	s.DestroySurfaces([]driver.SurfaceID{driver.InvalidSurface})
	if f.Calls["DestroySurfaces"] != before {
		t.Error("all-invalid batch reached the driver")
	}
}

func TestNVIDIADropsUsageHints(t *testing.T) {
	f := fake.New()
	f.Vendor = "Splitted-Desktop Systems VDPAU backend for VA-API"
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	if _, err := s.CreateSurfaces(driver.RTFormatYUV420, image.Pt(64, 64),
		UsageHintDecoder|UsageHintExport, 1); err != nil {
		t.Fatalf("create surfaces: %v", err)
	}
	if got := f.SurfaceHints[len(f.SurfaceHints)-1]; got != driver.UsageHintGeneric {
		t.Errorf("hints %#x reached the VDPAU shim, want none", uint32(got))
	}
}

func TestCreateScopedSurfaces(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	scoped, err := s.CreateScopedSurfaces(driver.RTFormatYUV420, image.Pt(64, 64),
		UsageHintDecoder, 2, driver.FourCCNV12)
	if err != nil {
		t.Fatalf("create scoped: %v", err)
	}
	if got := f.SurfaceFourCCs[len(f.SurfaceFourCCs)-1]; got != driver.FourCCNV12 {
		t.Errorf("fourcc %v reached the driver, want NV12", got)
	}

	for _, sc := range scoped {
		sc.Close()
		sc.Close() // idempotent
	}
	if surfaces, _, _, _, _ := f.Live(); surfaces != 0 {
		t.Errorf("%d surfaces live after close", surfaces)
	}
}

func TestSyncSurface(t *testing.T) {
	f := fake.New()
	s := newTestSession(t, f, ModeDecode, driver.ProfileH264Main)

	ids, err := s.CreateSurfaces(driver.RTFormatYUV420, image.Pt(64, 64), UsageHintGeneric, 1)
	if err != nil {
		t.Fatalf("create surfaces: %v", err)
	}
	if err := s.SyncSurface(ids[0]); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(f.Synced) != 1 || f.Synced[0] != ids[0] {
		t.Errorf("synced %v, want [%d]", f.Synced, ids[0])
	}
}
