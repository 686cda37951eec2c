package publish

import (
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// encodeSpectrum compactly encodes a channel-count snapshot as a CBOR array
// of unsigned integers, avoiding a 4096-element JSON array on the wire to
// Redis.
func encodeSpectrum(counts []uint32) ([]byte, error) {
	return cbor.Marshal(counts)
}

func formatMicroSv(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
