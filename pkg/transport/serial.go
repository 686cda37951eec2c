package transport

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// readTimeout bounds a single port.Read call so StopReading's signal is
// never blocked behind an indefinite read.
const readTimeout = 250 * time.Millisecond

// SerialTransport implements Transport over a USB/Bluetooth virtual serial
// port opened with go.bug.st/serial. Reads happen one chunk at a time on a
// dedicated goroutine; writes are serialized under writeMu so a
// configuration request and a spectrum-poll request can never interleave
// their bytes on the wire.
type SerialTransport struct {
	port serial.Port

	writeMu sync.Mutex

	onData  func([]byte)
	onError func(code int, message string)

	// readMu guards stopCh/wg: the acquisition worker may call BeginReading
	// and StopReading across several start/stop cycles on the same
	// transport, and each cycle needs its own stop signal.
	readMu sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// OpenSerial opens devicePath at baudRate and returns a ready-to-use
// SerialTransport. The caller must still call BeginReading.
func OpenSerial(devicePath string, baudRate int) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	// A bounded read timeout, rather than a blocking read, lets StopReading
	// observe a closed stopCh promptly instead of waiting out however long
	// it takes for the next byte to arrive.
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}

	return &SerialTransport{
		port: port,
	}, nil
}

func (t *SerialTransport) SetDataReadyCallback(fn func(data []byte)) {
	t.onData = fn
}

func (t *SerialTransport) SetErrorCallback(fn func(code int, message string)) {
	t.onError = fn
}

func (t *SerialTransport) BeginReading() error {
	t.readMu.Lock()
	stopCh := make(chan struct{})
	t.stopCh = stopCh
	t.wg.Add(1)
	t.readMu.Unlock()

	go t.readLoop(stopCh)
	return nil
}

// StopReading blocks until the current read loop, if any, has exited. It is
// safe to call even when no read loop is running, and safe to call again
// after a later BeginReading starts a new one.
func (t *SerialTransport) StopReading() {
	t.readMu.Lock()
	stopCh := t.stopCh
	t.readMu.Unlock()

	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	t.wg.Wait()
}

func (t *SerialTransport) readLoop(stopCh chan struct{}) {
	defer t.wg.Done()

	buf := make([]byte, 4096)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if err == io.EOF {
				return
			}
			if t.onError != nil {
				t.onError(0, fmt.Sprintf("serial read error: %v", err))
			}
			continue
		}
		if n == 0 {
			continue
		}

		if t.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.onData(chunk)
		}
	}
}

func (t *SerialTransport) SetConfigurationSetting(data []byte) error {
	return t.write(data)
}

func (t *SerialTransport) GetConfigurationSetting(data []byte) error {
	return t.write(data)
}

func (t *SerialTransport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.port.Write(data); err != nil {
		log.Printf("transport: write failed: %v", err)
		return fmt.Errorf("serial write failed: %w", err)
	}
	return nil
}

func (t *SerialTransport) Close() error {
	t.StopReading()
	return t.port.Close()
}
