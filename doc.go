// Package hwaccel manages hardware video-acceleration sessions over a
// native driver stack.
//
// # Overview
//
// hwaccel sits between codec implementations (decoders, encoders, video
// processors) and the platform's acceleration driver. It owns capability
// probing, the shared device connection, per-stream sessions with their
// configurations and contexts, command-buffer submission, zero-copy surface
// import/export, and protected-content sessions.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/hwaccel"
//	    "github.com/gogpu/hwaccel/driver"
//	    _ "github.com/gogpu/hwaccel/driver/libva"
//	)
//
//	d, err := hwaccel.AcquireDisplay()
//	if err != nil { ... }
//	defer d.Release()
//
//	s, err := hwaccel.NewSession(d, hwaccel.ModeDecode, driver.ProfileH264Main)
//	if err != nil { ... }
//	defer s.Close()
//
//	surfaces, err := s.CreateContextAndSurfaces(
//	    driver.RTFormatYUV420, image.Pt(1920, 1080), hwaccel.UsageHintDecoder, 8)
//
// # Concurrency
//
// A Display is shared: every session on it serializes driver calls behind
// one lock, so sessions on different goroutines coexist safely. A Session
// itself belongs to the goroutine that created it; see WithoutAffinityCheck.
//
// # Drivers
//
// The native binding is behind the driver.Driver interface. driver/libva is
// the production implementation; driver/fake backs the tests. Importing a
// driver package registers it.
package hwaccel

// Version is the current version of the library.
const Version = "0.2.0"
