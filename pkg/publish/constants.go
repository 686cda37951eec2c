package publish

// Redis keys and fields. The driver owns one hash per component plus a
// shared command list, mirroring the one-hash-per-subsystem layout the
// scooter's Redis state bus uses elsewhere on the vehicle.
const (
	KeyGamma   = "spectrometer:gamma"
	KeyNeutron = "spectrometer:neutron"
	KeyDose    = "spectrometer:dose"

	// KeyCommandList is the BRPOP target for Start/Stop/GetConfigurationData
	// requests issued by another process on the scooter.
	KeyCommandList = "scooter:spectrometer"

	FieldState       = "state"
	FieldCount       = "count"
	FieldSpectrum    = "spectrum"
	FieldDoseMicroSv = "dose-microsv"
	FieldDoseRate    = "dose-rate-microsv-per-hour"
	FieldError = "error"
	// FieldConfigResult carries a GetConfigurationData response: BRPOP is
	// one-way and has no reply channel of its own, so the result is written
	// to this field and the field name published on the component's channel.
	FieldConfigResult = "config-result"
)

// Component state strings written to FieldState.
const (
	StateStopped   = "stopped"
	StateRunning   = "running"
	StateFinishing = "finishing"
)
