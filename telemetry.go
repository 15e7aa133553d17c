package hwaccel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DriverOp identifies a driver operation for error accounting. Values are
// stable label values; renaming one is a telemetry break.
type DriverOp int

const (
	OpOpen DriverOp = iota
	OpClose
	OpQueryProfiles
	OpQueryEntrypoints
	OpGetConfigAttributes
	OpCreateConfig
	OpDestroyConfig
	OpQueryConfigAttributes
	OpQuerySurfaceAttributes
	OpCreateSurfaces
	OpImportSurface
	OpDestroySurfaces
	OpSyncSurface
	OpExportSurfaceHandle
	OpCreateContext
	OpDestroyContext
	OpCreateBuffer
	OpMapBuffer
	OpUnmapBuffer
	OpDestroyBuffer
	OpBeginPicture
	OpRenderPicture
	OpEndPicture
	OpQueryImageFormats
	OpDeriveImage
	OpCreateImage
	OpDestroyImage
	OpPutImage
	OpQueryPipelineCaps
	OpCreateProtectedSession
	OpDestroyProtectedSession
	OpAttachProtectedSession
	OpDetachProtectedSession
	OpProtectedExecute
)

var driverOpNames = [...]string{
	OpOpen:                    "open",
	OpClose:                   "close",
	OpQueryProfiles:           "query_profiles",
	OpQueryEntrypoints:        "query_entrypoints",
	OpGetConfigAttributes:     "get_config_attributes",
	OpCreateConfig:            "create_config",
	OpDestroyConfig:           "destroy_config",
	OpQueryConfigAttributes:   "query_config_attributes",
	OpQuerySurfaceAttributes:  "query_surface_attributes",
	OpCreateSurfaces:          "create_surfaces",
	OpImportSurface:           "import_surface",
	OpDestroySurfaces:         "destroy_surfaces",
	OpSyncSurface:             "sync_surface",
	OpExportSurfaceHandle:     "export_surface_handle",
	OpCreateContext:           "create_context",
	OpDestroyContext:          "destroy_context",
	OpCreateBuffer:            "create_buffer",
	OpMapBuffer:               "map_buffer",
	OpUnmapBuffer:             "unmap_buffer",
	OpDestroyBuffer:           "destroy_buffer",
	OpBeginPicture:            "begin_picture",
	OpRenderPicture:           "render_picture",
	OpEndPicture:              "end_picture",
	OpQueryImageFormats:       "query_image_formats",
	OpDeriveImage:             "derive_image",
	OpCreateImage:             "create_image",
	OpDestroyImage:            "destroy_image",
	OpPutImage:                "put_image",
	OpQueryPipelineCaps:       "query_pipeline_caps",
	OpCreateProtectedSession:  "create_protected_session",
	OpDestroyProtectedSession: "destroy_protected_session",
	OpAttachProtectedSession:  "attach_protected_session",
	OpDetachProtectedSession:  "detach_protected_session",
	OpProtectedExecute:        "protected_execute",
}

func (op DriverOp) String() string {
	if op >= 0 && int(op) < len(driverOpNames) {
		return driverOpNames[op]
	}
	return "unknown"
}

// DriverErrors counts failed driver calls by operation.
var DriverErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hwaccel_driver_errors_total",
	Help: "Total number of failed driver calls by operation",
}, []string{"op"})

// ReportErrorFunc receives the operation of every failed driver call made on
// behalf of a session. Callers use it to feed their own failure accounting.
type ReportErrorFunc func(DriverOp)

// reportError records a failed driver call: counter, optional per-session
// callback, error log.
func reportError(op DriverOp, report ReportErrorFunc, err error) {
	DriverErrors.WithLabelValues(op.String()).Inc()
	if report != nil {
		report(op)
	}
	Logger().Error("driver call failed", "op", op.String(), "err", err)
}
