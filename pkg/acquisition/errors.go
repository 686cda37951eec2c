package acquisition

// ErrorKind categorizes an ErrorEvent. These mirror the error categories a
// caller needs to distinguish, not Go error types: errors never unwind out
// of the worker, they are enqueued and multicast as events instead.
type ErrorKind int

const (
	// ErrorTransport is relayed from the transport's error callback, and is
	// also raised for begin-reading and send failures, reassembly overflow,
	// and stream corruption.
	ErrorTransport ErrorKind = iota
	// ErrorDecompression is raised when a compressed packet fails to expand.
	ErrorDecompression
	// ErrorInternalDevice corresponds to an unrecognized InternalError report.
	ErrorInternalDevice
)

// maxErrorTextLen bounds how much of an InternalError report's ASCII text is
// kept when relaying it as an ErrorEvent.Message.
const maxErrorTextLen = 50
