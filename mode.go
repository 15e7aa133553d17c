package hwaccel

import "github.com/gogpu/hwaccel/driver"

// Mode selects what kind of work a session performs. It decides the
// entrypoint, the required configuration attributes, and which operations
// are legal on the session.
type Mode int

const (
	// ModeDecode is hardware video decoding of clear content.
	ModeDecode Mode = iota

	// ModeDecodeProtected is decoding of encrypted content through a
	// protected session.
	ModeDecodeProtected

	// ModeEncodeConstantBitrate is encoding with bitrate-driven rate
	// control.
	ModeEncodeConstantBitrate

	// ModeEncodeConstantQuantization is encoding with a fixed
	// quantization parameter (rate control off in the driver).
	ModeEncodeConstantQuantization

	// ModeVideoProcess is post-processing (scaling, rotation, format
	// conversion) between surfaces.
	ModeVideoProcess

	modeCount
)

func (m Mode) String() string {
	switch m {
	case ModeDecode:
		return "decode"
	case ModeDecodeProtected:
		return "decode-protected"
	case ModeEncodeConstantBitrate:
		return "encode-cbr"
	case ModeEncodeConstantQuantization:
		return "encode-cqp"
	case ModeVideoProcess:
		return "video-process"
	}
	return "mode(?)"
}

// decode reports whether the mode decodes.
func (m Mode) decode() bool { return m == ModeDecode || m == ModeDecodeProtected }

// encode reports whether the mode encodes.
func (m Mode) encode() bool {
	return m == ModeEncodeConstantBitrate || m == ModeEncodeConstantQuantization
}

// EncryptionScheme describes how protected content is encrypted.
type EncryptionScheme int

const (
	// EncryptionNone means clear content.
	EncryptionNone EncryptionScheme = iota

	// EncryptionCenc is AES-CTR full-sample or subsample encryption.
	EncryptionCenc

	// EncryptionCbcs is AES-CBC pattern encryption.
	EncryptionCbcs
)

// SurfaceUsageHint advises the driver how allocated surfaces will be used.
// Hints combine; an empty slice means generic usage.
type SurfaceUsageHint = driver.UsageHint

const (
	UsageHintGeneric      = driver.UsageHintGeneric
	UsageHintDecoder      = driver.UsageHintDecoder
	UsageHintEncoder      = driver.UsageHintEncoder
	UsageHintVideoProcess = driver.UsageHintVideoProcW
	UsageHintExport       = driver.UsageHintExport
)
