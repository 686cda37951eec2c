package acquisition

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/kromeklabs/spectro-driver/pkg/heatshrink"
	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

// heatshrinkWindowBits and heatshrinkLookaheadBits are fixed for this wire
// dialect; the device never negotiates other widths.
const (
	heatshrinkWindowBits    = 9
	heatshrinkLookaheadBits = 8
)

// isConfigurationGetReport wraps wire.ConfigurationGetReportIDs as a
// membership check for readability at the call site.
func isConfigurationGetReport(reportID byte) bool {
	return wire.ConfigurationGetReportIDs[reportID]
}

// workerLoop is the acquisition worker: the sole consumer of reassembled
// packets and the sole site from which component Sinks are invoked. It
// interleaves spectrum polling, packet processing, and error flushing on a
// short wait primitive so all three make timely progress.
func (c *Core) workerLoop() {
	defer c.workerWg.Done()

	c.mu.Lock()
	c.nextQueryTimeMs = nowMs() + querySpectrumRateMs
	c.mu.Unlock()

	for {
		c.pollSpectrumIfDue()
		c.drainErrors()

		// A forced stop breaks immediately, without draining whatever the
		// streamer still has buffered; a finish (graceful stop) only breaks
		// once nextPacket below finds nothing left ready.
		c.mu.Lock()
		forceStop := c.requiredState == requestStop
		if forceStop {
			c.currentState = StateStopping
		}
		c.mu.Unlock()
		if forceStop {
			break
		}

		if packet, ok := c.nextPacket(); ok {
			c.processPacket(packet)
			continue
		}

		c.mu.Lock()
		finishing := c.requiredState == requestFinish
		if finishing {
			c.currentState = StateFinishing
		}
		next := c.nextQueryTimeMs
		c.mu.Unlock()
		if finishing {
			break
		}

		wait := next - nowMs()
		if wait < 1 {
			wait = 1
		}
		select {
		case <-c.wake:
		case <-time.After(time.Duration(wait) * time.Millisecond):
		}
	}

	c.finishWorker()
}

// nextPacket pulls one fully-reassembled packet off the streamer, if ready.
func (c *Core) nextPacket() ([]byte, bool) {
	packet, ok, err := c.stream.ReadPacket()
	if err != nil {
		c.raiseError(ErrorEvent{Kind: ErrorTransport, Message: err.Error()})
		return nil, false
	}
	return packet, ok
}

// finishWorker delivers any component-level Finished events not yet raised,
// transitions the execution state back to Idle, and stops transport reads.
func (c *Core) finishWorker() {
	c.transport.StopReading()

	type toFinish struct {
		id byte
	}
	var finishing []toFinish

	c.mu.Lock()
	for _, id := range [3]byte{wire.ComponentGamma, wire.ComponentNeutron, wire.ComponentDose} {
		s := c.componentStateFor(id)
		if s.status != statusStopped {
			s.status = statusStopped
			finishing = append(finishing, toFinish{id})
		}
	}
	c.currentState = StateIdle
	c.workerRunning = false
	c.mu.Unlock()

	for _, f := range finishing {
		c.registry.deliver(f.id, Event{Kind: EventFinished, Finish: FinishEvent{WasForced: false}})
	}
}

// processPacket decompresses if needed and dispatches by reportID.
func (c *Core) processPacket(packet []byte) {
	if len(packet) < wire.HeaderSize {
		return
	}

	h := wire.ParseHeader(packet)
	if wire.IsCompressed(h.Mode) {
		decompressed, err := c.decompressPacket(packet, h)
		if err != nil {
			c.raiseError(ErrorEvent{Kind: ErrorDecompression, Message: err.Error()})
			return
		}
		packet = decompressed
		h = wire.ParseHeader(packet)
	}

	switch h.ReportID {
	case wire.ReportStartResponse:
		// Transport handshake only; nothing to deliver.
	case wire.ReportSpectrum16:
		c.handleSpectrum16(packet)
	case wire.ReportRadiometricsV1:
		c.handleRadiometricsV1(packet)
	case wire.ReportInternalError:
		c.handleInternalError(packet, h)
	default:
		if isConfigurationGetReport(h.ReportID) {
			c.handleConfigurationResponse(packet)
		}
	}
}

// decompressPacket expands a compressed packet and re-synthesizes a plain
// packet header from the decompressed content. The device compresses the
// content header too, so componentID/reportID of the synthesized packet are
// read from the first two decompressed bytes, not from the original
// (compressed) header's componentID/reportID fields.
func (c *Core) decompressPacket(packet []byte, h wire.Header) ([]byte, error) {
	// The compressed bitstream starts right after mode (offset 3, the
	// componentID/reportID position) and runs for messageSize-HeaderSize
	// bytes: the device compresses the content header too, so those two
	// outer bytes are not meaningful until decompression reconstructs them.
	const contentHeaderOffset = 3
	compressedLen := int(h.MessageSize) - wire.HeaderSize
	if compressedLen < 0 || contentHeaderOffset+compressedLen > len(packet) {
		return nil, heatshrink.ErrMalformedStream
	}
	input := packet[contentHeaderOffset : contentHeaderOffset+compressedLen]

	out := make([]byte, wire.MaxReportSize)
	n, err := heatshrink.Expand(input, heatshrinkWindowBits, heatshrinkLookaheadBits, out)
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, heatshrink.ErrMalformedStream
	}

	synthesized := make([]byte, n+wire.HeaderSize)
	wire.PutHeader(synthesized, wire.Header{
		MessageSize: uint16(n + wire.HeaderSize),
		Mode:        h.Mode &^ wire.ModeCompressed,
		ComponentID: out[0],
		ReportID:    out[1],
	})
	copy(synthesized[wire.HeaderSize:], out[2:n])
	// Trailing CRC is never recomputed for a synthesized packet; left as the
	// zero value, which the streamer already treats as valid (§4.3).
	return synthesized, nil
}

type capturedDelivery struct {
	componentID byte
	event       Event
}

// spectrumFrame is the subset of either spectrum report's fields the common
// handler logic needs, after the report-specific parse.
type spectrumFrame struct {
	realTimeMS     uint32
	neutronCounts  uint32
	gammaSpectrum  []uint16
	hasRadiometrics bool
	dose           float32
	doseRate       float32
	neutronTempC   float32
	neutronLiveMs  uint32
	gammaTempC     float32
	gammaLiveMs    uint32
}

func (c *Core) handleSpectrum16(packet []byte) {
	body := packet[wire.HeaderSize:]
	if len(body) < 4+2+wire.SpectrumChannels*2 {
		return
	}
	f := spectrumFrame{
		realTimeMS:    binary.LittleEndian.Uint32(body[0:4]),
		neutronCounts: uint32(binary.LittleEndian.Uint16(body[4:6])),
		gammaSpectrum: make([]uint16, wire.SpectrumChannels),
	}
	for i := 0; i < wire.SpectrumChannels; i++ {
		f.gammaSpectrum[i] = binary.LittleEndian.Uint16(body[6+i*2 : 8+i*2])
	}
	c.handleSpectrumFrame(f)
}

func (c *Core) handleRadiometricsV1(packet []byte) {
	body := packet[wire.HeaderSize:]
	const fixedLen = 54
	if len(body) < fixedLen+wire.SpectrumChannels*2 {
		return
	}

	f := spectrumFrame{
		hasRadiometrics: true,
		realTimeMS:      binary.LittleEndian.Uint32(body[4:8]),
		dose:            math.Float32frombits(binary.LittleEndian.Uint32(body[12:16])),
		doseRate:        math.Float32frombits(binary.LittleEndian.Uint32(body[16:20])),
		neutronLiveMs:   binary.LittleEndian.Uint32(body[24:28]) / 100,
		neutronCounts:   binary.LittleEndian.Uint32(body[28:32]),
		neutronTempC:    float32(int16(binary.LittleEndian.Uint16(body[32:34]))) / 100,
		gammaLiveMs:     binary.LittleEndian.Uint32(body[38:42]) / 100,
		gammaTempC:      float32(int16(binary.LittleEndian.Uint16(body[46:48]))) / 100,
		gammaSpectrum:   make([]uint16, wire.SpectrumChannels),
	}
	for i := 0; i < wire.SpectrumChannels; i++ {
		off := fixedLen + i*2
		f.gammaSpectrum[i] = binary.LittleEndian.Uint16(body[off : off+2])
	}
	c.handleSpectrumFrame(f)
}

// handleSpectrumFrame is the common logic shared by both spectrum report
// variants: wake the poller's discovery path, discard the first post-start
// report, advance the session clock, decide per-component delivery under
// the acquisition mutex, then emit events with the mutex released.
func (c *Core) handleSpectrumFrame(f spectrumFrame) {
	var deliveries []capturedDelivery
	var ts int64

	c.mu.Lock()
	c.spectrumResponseSeen = true

	if c.ignoreFirstSpectrum {
		c.ignoreFirstSpectrum = false
		c.startAcquisitionTsMs = nowMs()
		c.mu.Unlock()
		return
	}

	c.accumulatedRealTimeMs += int64(f.realTimeMS)
	ts = c.startAcquisitionTsMs + c.accumulatedRealTimeMs

	now := nowMs()
	if ts > now {
		c.accumulatedRealTimeMs = now - c.startAcquisitionTsMs
		ts = now
	}

	deliveries = append(deliveries, c.decideComponentDelivery(wire.ComponentGamma, c.gamma, ts, f, true)...)
	deliveries = append(deliveries, c.decideComponentDelivery(wire.ComponentNeutron, c.neutron, ts, f, false)...)
	if f.hasRadiometrics {
		deliveries = append(deliveries, c.decideDoseDelivery(ts, f)...)
	}
	c.mu.Unlock()

	for _, d := range deliveries {
		c.registry.deliver(d.componentID, d.event)
	}
}

// decideComponentDelivery must be called with c.mu held. isGamma selects
// which half of the report (spectrum channels vs. neutron scalar count)
// this component receives when Running.
func (c *Core) decideComponentDelivery(componentID byte, s *componentState, ts int64, f spectrumFrame, isGamma bool) []capturedDelivery {
	switch {
	case s.status == statusRunning && s.startStopTimestampMs <= ts:
		s.accumulatedRealTimeMs += int64(f.realTimeMS)
		if f.hasRadiometrics {
			if isGamma {
				s.properties[PropertyGammaTemperatureC] = f.gammaTempC
				s.properties[PropertyLiveTimeMs] += float32(f.gammaLiveMs)
			} else {
				s.properties[PropertyNeutronTemperatureC] = f.neutronTempC
				s.properties[PropertyLiveTimeMs] += float32(f.neutronLiveMs)
			}
		}
		return c.countEventsFor(componentID, ts, f, isGamma)
	case s.status == statusFinishing && s.startStopTimestampMs < ts:
		s.status = statusStopped
		return []capturedDelivery{{componentID, Event{Kind: EventFinished, Finish: FinishEvent{WasForced: false}}}}
	default:
		return nil
	}
}

func (c *Core) countEventsFor(componentID byte, ts int64, f spectrumFrame, isGamma bool) []capturedDelivery {
	if isGamma {
		events := make([]capturedDelivery, 0, 8)
		for ch, count := range f.gammaSpectrum {
			if count > 0 {
				events = append(events, capturedDelivery{componentID, Event{
					Kind:  EventCount,
					Count: CountEvent{Timestamp: ts, Channel: ch, Count: uint32(count)},
				}})
			}
		}
		return events
	}
	if f.neutronCounts > 0 {
		return []capturedDelivery{{componentID, Event{
			Kind:  EventCount,
			Count: CountEvent{Timestamp: ts, Channel: 0, Count: f.neutronCounts},
		}}}
	}
	return nil
}

func (c *Core) decideDoseDelivery(ts int64, f spectrumFrame) []capturedDelivery {
	s := c.dose
	switch {
	case s.status == statusRunning && s.startStopTimestampMs <= ts:
		return []capturedDelivery{{wire.ComponentDose, Event{
			Kind: EventDose,
			Dose: DoseEvent{
				Timestamp:          ts,
				DoseMicroSv:        float64(f.dose) * 1e6,
				RateMicroSvPerHour: float64(f.doseRate) * 1e6,
				AccumulatedMicroSv: 0,
			},
		}}}
	case s.status == statusFinishing && s.startStopTimestampMs < ts:
		s.status = statusStopped
		return []capturedDelivery{{wire.ComponentDose, Event{Kind: EventFinished, Finish: FinishEvent{WasForced: false}}}}
	default:
		return nil
	}
}

func (c *Core) handleInternalError(packet []byte, h wire.Header) {
	body := packet[wire.HeaderSize:]
	if len(body) < 1 {
		return
	}
	errorID := body[0]

	switch errorID {
	case wire.ErrorIDWarmingUp:
		c.mu.Lock()
		if c.reportType == reportTypeDetermining {
			c.reportType = reportTypeRadiometricsV1
		}
		c.mu.Unlock()
	case wire.ErrorIDNotImplemented:
		// Capability probe; swallow.
	default:
		text := body[1:]
		if len(text) > maxErrorTextLen {
			text = text[:maxErrorTextLen]
		}
		if nul := bytes.IndexByte(text, 0); nul >= 0 {
			text = text[:nul]
		}
		c.raiseError(ErrorEvent{Kind: ErrorInternalDevice, Code: int(errorID), Message: string(text)})
	}
}
