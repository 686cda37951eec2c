// Package streamer reassembles whole, CRC-verified packets out of a raw
// byte stream. Two wire framings are implemented behind the same Streamer
// interface: a length-prefixed framing (used over plain serial links) and a
// SLIP-style frame-delimited framing (used where the byte 0xC0 must be kept
// free to resynchronize after noise, e.g. some USB-HID/virtual-serial
// links). Both accept bytes in arbitrary chunks and enforce the Kromek
// CRC-16 trailer.
package streamer

import "errors"

// Streamer reassembles a raw byte stream into whole packets and frames
// outbound packets for the matching wire format.
type Streamer interface {
	// AddIncomingData appends newly-received bytes. The length-prefixed
	// streamer returns false if its buffer cannot accommodate them
	// (overflow); the frame-delimited streamer drops an over-long frame
	// instead and always returns true.
	AddIncomingData(data []byte) bool

	// ReadPacket returns the next fully-reassembled, CRC-verified packet, or
	// (nil, false, nil) if none is ready yet. A non-nil error indicates the
	// stream was found to be corrupt; the streamer has already entered its
	// recovery window by the time it returns.
	ReadPacket() ([]byte, bool, error)

	// PrepareForSend frames data for transmission on the wire.
	PrepareForSend(data []byte) []byte
}

// ErrCorruption is returned by ReadPacket when the buffered bytes fail a
// size or CRC sanity check. The streamer drops its buffered bytes and opens
// a recovery window (see RecoveryIdleGap) before it will accept more.
var ErrCorruption = errors.New("streamer: corrupt data detected")

// RecoveryIdleGap is the idle period AddIncomingData requires, after
// entering recovery, before it resumes accepting bytes.
const RecoveryIdleGap = 100 // milliseconds
