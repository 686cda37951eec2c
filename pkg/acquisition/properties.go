package acquisition

// PropertyKey indexes a component's property map. Values below are the
// ones the pipeline itself populates from RadiometricsV1 reports; upper
// layers may define their own keys past this block for model-specific
// properties (LLD, gain).
type PropertyKey int

// Property keys the pipeline itself populates from RadiometricsV1 reports.
// Upper layers may also set model-specific properties (LLD, gain) under
// their own keys; GetComponentProperty returns 0.0 for anything unset.
const (
	PropertyGammaTemperatureC PropertyKey = iota
	PropertyNeutronTemperatureC
	PropertyLiveTimeMs
)
