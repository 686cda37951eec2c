package streamer

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

// LengthPrefixedStreamer implements the length-prefixed wire framing:
// offset 0 carries a u16 LE total packet size, the trailing two bytes carry
// the Kromek CRC-16 (or zero, accepted as a concession to firmware that
// doesn't always stamp a CRC on otherwise-good frames).
type LengthPrefixedStreamer struct {
	mu       sync.Mutex
	buf      []byte
	w        int
	recovery bool
	lastData time.Time

	now func() time.Time // overridable in tests
}

// NewLengthPrefixedStreamer allocates a streamer with the given internal
// buffer capacity.
func NewLengthPrefixedStreamer(capacity int) *LengthPrefixedStreamer {
	return &LengthPrefixedStreamer{
		buf: make([]byte, capacity),
		now: time.Now,
	}
}

// AddIncomingData appends bytes to the reassembly buffer. While in
// recovery, bytes are silently discarded until an idle gap of
// RecoveryIdleGap has elapsed.
func (s *LengthPrefixedStreamer) AddIncomingData(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ok := true
	if s.updateRecoveryLocked(now) {
		if s.w+len(data) > len(s.buf) {
			ok = false
		} else {
			copy(s.buf[s.w:], data)
			s.w += len(data)
		}
	}
	s.lastData = now
	return ok
}

// updateRecoveryLocked clears the recovery flag once the idle gap has
// elapsed and reports whether data should currently be accepted.
func (s *LengthPrefixedStreamer) updateRecoveryLocked(now time.Time) bool {
	if s.recovery {
		if now.Sub(s.lastData) >= RecoveryIdleGap*time.Millisecond {
			s.recovery = false
		}
	}
	return !s.recovery
}

// ReadPacket returns the next complete packet, if one has arrived.
func (s *LengthPrefixedStreamer) ReadPacket() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w < 2 {
		return nil, false, nil
	}

	size := binary.LittleEndian.Uint16(s.buf[0:2])
	if size == 0 || int(size) > wire.MaxReportSize {
		s.enterRecoveryLocked()
		return nil, false, ErrCorruption
	}
	if s.w < int(size) {
		return nil, false, nil
	}

	crc := binary.LittleEndian.Uint16(s.buf[size-2 : size])
	if crc != 0 && crc != wire.CalculateCRC(s.buf[:size-2], wire.CRCSeed) {
		s.enterRecoveryLocked()
		return nil, false, ErrCorruption
	}

	packet := make([]byte, size)
	copy(packet, s.buf[:size])
	copy(s.buf, s.buf[size:s.w])
	s.w -= int(size)
	return packet, true, nil
}

func (s *LengthPrefixedStreamer) enterRecoveryLocked() {
	s.recovery = true
	s.w = 0
}

// PrepareForSend returns data unchanged: the length-prefixed framing does
// not transform outbound bytes.
func (s *LengthPrefixedStreamer) PrepareForSend(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
