package acquisition

import "github.com/kromeklabs/spectro-driver/pkg/wire"

// pollSpectrumIfDue emits a spectrum request when the worker's query timer
// has elapsed and at least one component is actively running. It also
// drives report-type discovery: the first request always probes
// RadiometricsV1; if nothing answers by the next tick, the device is
// assumed to only support Spectrum16.
func (c *Core) pollSpectrumIfDue() {
	c.mu.Lock()
	if nowMs() < c.nextQueryTimeMs {
		c.mu.Unlock()
		return
	}

	configOnly := c.gamma.status != statusRunning &&
		c.neutron.status != statusRunning &&
		c.dose.status != statusRunning

	var reportID byte
	if !configOnly {
		switch c.reportType {
		case reportTypeUnknown:
			reportID = wire.ReportRadiometricsV1
			c.reportType = reportTypeDetermining
		case reportTypeDetermining:
			if c.spectrumResponseSeen {
				c.reportType = reportTypeRadiometricsV1
			} else {
				c.reportType = reportTypeSpectrum16
			}
			reportID = c.reportIDFor(c.reportType)
		default:
			reportID = c.reportIDFor(c.reportType)
		}
		c.spectrumResponseSeen = false
	}

	c.lastSpectrumRequestMs = nowMs()
	c.nextQueryTimeMs = c.lastSpectrumRequestMs + querySpectrumRateMs
	c.mu.Unlock()

	if !configOnly {
		_ = c.sendBasicRequest(wire.ComponentInterfaceBoard, reportID, nil)
	}
}

func (c *Core) reportIDFor(rt reportTypeState) byte {
	if rt == reportTypeRadiometricsV1 {
		return wire.ReportRadiometricsV1
	}
	return wire.ReportSpectrum16
}

// sendBasicRequest frames and sends a header-only (or header-plus-data)
// request: {messageSize, mode=0, componentID, reportID} ++ data ++ a CRC
// placeholder, run through the streamer's PrepareForSend. The transport
// error, if any, is both raised as an ErrorEvent and returned so a caller
// blocked on a rendezvous (GetConfigurationData) can unwind immediately
// instead of waiting out the full timeout.
func (c *Core) sendBasicRequest(componentID, reportID byte, data []byte) error {
	total := wire.HeaderSize + len(data) + 2
	buf := make([]byte, total)
	wire.PutHeader(buf, wire.Header{
		MessageSize: uint16(total),
		Mode:        0,
		ComponentID: componentID,
		ReportID:    reportID,
	})
	copy(buf[wire.HeaderSize:], data)

	framed := c.stream.PrepareForSend(buf)
	if err := c.transport.SetConfigurationSetting(framed); err != nil {
		c.raiseError(ErrorEvent{Kind: ErrorTransport, Message: "spectrum/config request: " + err.Error()})
		return err
	}
	return nil
}

// compressionRequestPayload mirrors D3CompressionRequest's body: enabled,
// windowSize, lookAheadSize, direction, and two reserved bytes.
func compressionRequestPayload(enabled bool) []byte {
	e := byte(0)
	if enabled {
		e = 1
	}
	return []byte{e, heatshrinkWindowBits, heatshrinkLookaheadBits, 0, 0, 0}
}

// sendCompressionSetting asks the device to enable or disable Heatshrink
// compression on its responses. The driver always disables it at worker
// start: decompression is supported but nothing upstream exercises it
// end-to-end without a matching encoder, so we run uncompressed by default.
func (c *Core) sendCompressionSetting(enabled bool) {
	_ = c.sendBasicRequest(wire.ComponentInterfaceBoard, wire.ReportSetCompression, compressionRequestPayload(enabled))
}
