package streamer

import (
	"encoding/binary"
	"sync"

	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

const (
	frameByte    byte = 0xC0
	escByte      byte = 0xDB
	escFrameByte byte = 0xDC
	escEscByte   byte = 0xDD
)

// packetPoolSize bounds how many fully-reassembled frames can be queued
// awaiting ReadPacket before AddIncomingData starts silently dropping new
// ones. Unlike the length-prefixed streamer's buffer-full case, this is not
// reported: AddIncomingData still returns true.
const packetPoolSize = 5

// FrameDelimitedStreamer implements the SLIP-style framed wire format:
// frames are terminated by frameByte, with frameByte/escByte values inside
// the frame escaped as escByte+escFrameByte / escByte+escEscByte. The inner
// packet layout (header + payload + CRC) is the same as
// LengthPrefixedStreamer's. A frame is kept only if its size field equals
// the frame length and its CRC is zero or matches; other frames are dropped
// without an error and without a recovery window.
type FrameDelimitedStreamer struct {
	mu            sync.Mutex
	buf           []byte
	w             int
	pendingEscape bool

	poolMu  sync.Mutex
	ready   [][]byte
	poolCap int
}

// NewFrameDelimitedStreamer allocates a streamer with the given
// reassembly-buffer capacity.
func NewFrameDelimitedStreamer(capacity int) *FrameDelimitedStreamer {
	return &FrameDelimitedStreamer{
		buf:     make([]byte, capacity),
		poolCap: packetPoolSize,
	}
}

// AddIncomingData byte-unstuffs data into the assembly buffer, completing
// and enqueuing a frame whenever a frameByte terminator is seen. A frame
// longer than the assembly buffer is dropped; it always returns true.
func (s *FrameDelimitedStreamer) AddIncomingData(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := 0
	if s.pendingEscape {
		if i < len(data) {
			s.appendLocked(unescape(data[i]))
			s.pendingEscape = false
			i++
		}
	}

	for i < len(data) {
		b := data[i]
		switch {
		case b == frameByte:
			s.completeFrameLocked()
			i++
		case s.w >= len(s.buf):
			s.w = 0
		case b == escByte:
			if i+1 >= len(data) {
				s.pendingEscape = true
				i++
				return true
			}
			s.appendLocked(unescape(data[i+1]))
			i += 2
		default:
			s.appendLocked(b)
			i++
		}
	}
	return true
}

func unescape(b byte) byte {
	if b == escEscByte {
		return escByte
	}
	return frameByte
}

func (s *FrameDelimitedStreamer) appendLocked(b byte) {
	s.buf[s.w] = b
	s.w++
}

// completeFrameLocked validates and enqueues the buffered frame, then
// resets the write index for the next one. A frame failing the length or
// CRC check is silently discarded: only the bad frame is lost, and the
// stream resynchronizes at the next frameByte.
func (s *FrameDelimitedStreamer) completeFrameLocked() {
	if s.w >= 2 {
		size := binary.LittleEndian.Uint16(s.buf[0:2])
		if int(size) == s.w {
			crc := binary.LittleEndian.Uint16(s.buf[s.w-2 : s.w])
			if crc == 0 || crc == wire.CalculateCRC(s.buf[:s.w-2], wire.CRCSeed) {
				packet := make([]byte, s.w)
				copy(packet, s.buf[:s.w])
				s.enqueueLocked(packet)
			}
		}
	}
	s.w = 0
}

func (s *FrameDelimitedStreamer) enqueueLocked(packet []byte) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	if len(s.ready) >= s.poolCap {
		return
	}
	s.ready = append(s.ready, packet)
}

// ReadPacket dequeues the oldest ready frame, if any.
func (s *FrameDelimitedStreamer) ReadPacket() ([]byte, bool, error) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	if len(s.ready) == 0 {
		return nil, false, nil
	}
	packet := s.ready[0]
	s.ready = s.ready[1:]
	return packet, true, nil
}

// PrepareForSend escapes every frameByte and escByte occurrence and
// terminates the result with a trailing frameByte.
func (s *FrameDelimitedStreamer) PrepareForSend(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	for _, b := range data {
		switch b {
		case frameByte:
			out = append(out, escByte, escFrameByte)
		case escByte:
			out = append(out, escByte, escEscByte)
		default:
			out = append(out, b)
		}
	}
	return append(out, frameByte)
}
