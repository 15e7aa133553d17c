package hwaccel

// Option configures a Session during creation.
//
// Example:
//
//	// Default decode session
//	s, err := hwaccel.NewSession(d, hwaccel.ModeDecode, driver.ProfileH264Main)
//
//	// Encode session preferring the low-power engine
//	s, err := hwaccel.NewSession(d, hwaccel.ModeEncodeConstantBitrate,
//	    driver.ProfileH264Main, hwaccel.WithLowPowerEncoding())
type Option func(*sessionOptions)

// sessionOptions holds optional configuration for Session creation.
type sessionOptions struct {
	affinityCheck    bool
	report           ReportErrorFunc
	strictResolution bool
	lowPower         bool
	encryption       EncryptionScheme
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		affinityCheck: true,
	}
}

// WithoutAffinityCheck disables the goroutine-affinity assertion on session
// operations. Sessions are single-goroutine by contract; callers that hand a
// session between goroutines with their own serialization opt out here.
func WithoutAffinityCheck() Option {
	return func(o *sessionOptions) {
		o.affinityCheck = false
	}
}

// WithErrorReporter registers a callback invoked with the operation of every
// failed driver call made on behalf of the session.
func WithErrorReporter(report ReportErrorFunc) Option {
	return func(o *sessionOptions) {
		o.report = report
	}
}

// WithStrictResolution makes context creation reject sizes outside the
// probed capability bounds before touching the driver. Without it the driver
// gets the final say.
func WithStrictResolution() Option {
	return func(o *sessionOptions) {
		o.strictResolution = true
	}
}

// WithLowPowerEncoding prefers the low-power encode engine when the driver
// exposes one for the profile. Only meaningful for encode modes.
func WithLowPowerEncoding() Option {
	return func(o *sessionOptions) {
		o.lowPower = true
	}
}

// WithEncryption declares the encryption scheme of the content. Required for
// ModeDecodeProtected, ignored otherwise.
func WithEncryption(scheme EncryptionScheme) Option {
	return func(o *sessionOptions) {
		o.encryption = scheme
	}
}
