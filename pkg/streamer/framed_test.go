package streamer

import (
	"bytes"
	"testing"

	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

func buildFramedInnerPacket(mode, component, report byte, payload []byte, crc uint16) []byte {
	total := wire.HeaderSize + len(payload) + 2
	buf := make([]byte, total)
	wire.PutHeader(buf, wire.Header{
		MessageSize: uint16(total),
		Mode:        mode,
		ComponentID: component,
		ReportID:    report,
	})
	copy(buf[wire.HeaderSize:], payload)
	buf[total-2] = byte(crc)
	buf[total-1] = byte(crc >> 8)
	return buf
}

func TestFramedRoundTrip(t *testing.T) {
	inner := buildFramedInnerPacket(0, wire.ComponentInterfaceBoard, wire.ReportDeviceInfo, []byte{0xC0, 0xDB, 0x99}, 0)

	s := NewFrameDelimitedStreamer(wire.MaxReportSize)
	onWire := s.PrepareForSend(inner)

	s.AddIncomingData(onWire)
	got, ok, err := s.ReadPacket()
	if err != nil || !ok {
		t.Fatalf("ReadPacket() = %v, %v, %v", got, ok, err)
	}
	if !bytes.Equal(got, inner) {
		t.Fatalf("got %x, want %x", got, inner)
	}
}

func TestFramedEscapeSplitAcrossChunks(t *testing.T) {
	inner := buildFramedInnerPacket(0, wire.ComponentGamma, wire.ReportStatus, []byte{0xC0}, 0)

	s := NewFrameDelimitedStreamer(wire.MaxReportSize)
	prepared := s.PrepareForSend(inner)

	// Split right in the middle of an escape sequence (ESC, ESC_FRAME).
	escIdx := bytes.IndexByte(prepared, 0xDB)
	if escIdx < 0 {
		t.Fatal("test packet did not produce an escape sequence")
	}
	s.AddIncomingData(prepared[:escIdx+1])
	s.AddIncomingData(prepared[escIdx+1:])

	got, ok, err := s.ReadPacket()
	if err != nil || !ok {
		t.Fatalf("ReadPacket() = %v, %v, %v", got, ok, err)
	}
	if !bytes.Equal(got, inner) {
		t.Fatalf("got %x, want %x", got, inner)
	}
}

func TestFramedDiscardsBadFrame(t *testing.T) {
	good := buildFramedInnerPacket(0, wire.ComponentGamma, wire.ReportStatus, nil, 0)

	s := NewFrameDelimitedStreamer(wire.MaxReportSize)
	bad := append([]byte{}, good...)
	bad[len(bad)-1] ^= 0xFF // corrupt the CRC

	s.AddIncomingData(s.PrepareForSend(bad))
	if _, ok, _ := s.ReadPacket(); ok {
		t.Fatal("expected corrupt frame to be discarded, not delivered")
	}

	s.AddIncomingData(s.PrepareForSend(good))
	got, ok, _ := s.ReadPacket()
	if !ok || !bytes.Equal(got, good) {
		t.Fatalf("expected recovery to the next good frame, got %x ok=%v", got, ok)
	}
}

func TestFramedChunkBoundaryArbitrarySplitMatchesSingleChunk(t *testing.T) {
	a := buildFramedInnerPacket(0, wire.ComponentGamma, wire.ReportStatus, []byte("alpha"), 0)
	b := buildFramedInnerPacket(0, wire.ComponentNeutron, wire.ReportStatus, []byte("beta"), 0)

	s := NewFrameDelimitedStreamer(wire.MaxReportSize)
	stream := append(s.PrepareForSend(a), s.PrepareForSend(b)...)

	// Feed three bytes at a time regardless of frame boundaries.
	for i := 0; i < len(stream); i += 3 {
		end := i + 3
		if end > len(stream) {
			end = len(stream)
		}
		s.AddIncomingData(stream[i:end])
	}

	first, ok, _ := s.ReadPacket()
	if !ok || !bytes.Equal(first, a) {
		t.Fatalf("first packet got %x, want %x", first, a)
	}
	second, ok, _ := s.ReadPacket()
	if !ok || !bytes.Equal(second, b) {
		t.Fatalf("second packet got %x, want %x", second, b)
	}
}
