// Package transport defines the duplex byte-stream contract the
// acquisition core consumes, plus a concrete adapter for USB/Bluetooth
// virtual serial ports (OpenSerial). USB enumeration and OS-level
// plug/unplug notification are out of scope here: Transport only needs to
// deliver and accept already-de-buffered bytes.
package transport

// Transport is the duplex channel the acquisition core reads packets from
// and writes configuration requests to. Implementations are assumed to run
// their own read goroutine and invoke the registered callbacks from it.
type Transport interface {
	// SetDataReadyCallback registers the function called with newly-arrived
	// bytes. Must be set before BeginReading.
	SetDataReadyCallback(fn func(data []byte))

	// SetErrorCallback registers the function called when the transport
	// itself encounters an I/O error.
	SetErrorCallback(fn func(code int, message string))

	// BeginReading starts delivering bytes to the data-ready callback.
	BeginReading() error

	// StopReading stops delivering bytes. Safe to call from any goroutine;
	// does not close the underlying connection.
	StopReading()

	// SetConfigurationSetting writes a fully-framed request to the device.
	SetConfigurationSetting(data []byte) error

	// GetConfigurationSetting is a synonym kept for symmetry with the
	// original two-method send surface; both write the same framed bytes.
	GetConfigurationSetting(data []byte) error

	// Close releases the underlying connection.
	Close() error
}
