package wire

import "encoding/binary"

// HeaderSize is the size in bytes of the fixed message header preceding
// every packet's payload: u16 messageSize, u8 mode, u8 componentID, u8
// reportID.
const HeaderSize = 5

// MaxReportSize is the largest packet the device is ever expected to send
// or that the streamers will accept; anything larger is treated as stream
// corruption.
const MaxReportSize = 8500

// SpectrumChannels is the number of channels carried by a full spectrum
// report.
const SpectrumChannels = 4096

// Component IDs. Gamma, Neutron and Dose are the three addressable
// acquisition slots; InterfaceBoard and Configuration are pseudo-slots used
// only for request routing and rendezvous tagging.
const (
	ComponentGamma          byte = 0x01
	ComponentNeutron        byte = 0x02
	ComponentDose           byte = 0x03
	ComponentInterfaceBoard byte = 0x07
	ComponentConfiguration  byte = 0x0A
)

// Report IDs.
const (
	ReportInternalError      byte = 0xC0
	ReportSpectrum16         byte = 0xC1
	ReportRadiometricsV1     byte = 0xC2
	ReportStartResponse      byte = 0xC4
	ReportStatus             byte = 0xC5
	ReportDeviceInfo         byte = 0xC8
	ReportSetCompression     byte = 0x4F
)

// ConfigurationGetReportIDs are the report IDs the dispatcher hands to the
// configuration rendezvous rather than to acquisition processing.
var ConfigurationGetReportIDs = map[byte]bool{
	0x82: true,
	0x86: true,
	0x87: true,
	0x88: true,
	0x89: true,
	0x8A: true,
	0x8B: true,
	0x8C: true,
	0xC5: true,
	0xC6: true,
	0xC8: true,
	0x92: true,
}

// Internal-error codes carried in InternalError reports.
const (
	ErrorIDWarmingUp     = 0x0B
	ErrorIDNotImplemented = 0x03
)

// ModeCompressed is the bit in Header.Mode that marks the payload-and-
// trailer (everything after Mode) as heatshrink-compressed.
const ModeCompressed byte = 0x01

// Header is the 5-byte prefix common to every packet on both wire
// framings: size, compression mode, addressing, and report identity.
type Header struct {
	MessageSize uint16 // full packet length, including header and trailing CRC
	Mode        byte   // bit 0 = compressed
	ComponentID byte
	ReportID    byte
}

// ParseHeader reads a Header from the first HeaderSize bytes of data.
// Callers must ensure len(data) >= HeaderSize.
func ParseHeader(data []byte) Header {
	return Header{
		MessageSize: binary.LittleEndian.Uint16(data[0:2]),
		Mode:        data[2],
		ComponentID: data[3],
		ReportID:    data[4],
	}
}

// PutHeader writes h into the first HeaderSize bytes of out (the header
// occupies bytes 0..4: size, mode, componentID, reportID).
func PutHeader(out []byte, h Header) {
	binary.LittleEndian.PutUint16(out[0:2], h.MessageSize)
	out[2] = h.Mode
	out[3] = h.ComponentID
	out[4] = h.ReportID
}

// IsCompressed reports whether mode's bit 0 marks the trailing payload as
// heatshrink-compressed.
func IsCompressed(mode byte) bool {
	return mode&ModeCompressed != 0
}
