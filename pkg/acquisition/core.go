package acquisition

import (
	"fmt"
	"sync"
	"time"

	"github.com/kromeklabs/spectro-driver/pkg/streamer"
	"github.com/kromeklabs/spectro-driver/pkg/transport"
	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

// querySpectrumRateMs is the period between spectrum poll requests.
const querySpectrumRateMs = 100

// spectrumTransmissionTimeMs is the minimum gap StopProcessing leaves after
// the last spectrum request before it asks the worker to finish or stop,
// so a request already on the wire has time to be answered.
const spectrumTransmissionTimeMs = 100

// configRendezvousTimeout bounds how long GetConfigurationData blocks.
const configRendezvousTimeout = 3000 * time.Millisecond

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// componentState is the status/timestamp/accumulator/property data for one
// of the three addressable slots, guarded by Core.mu (the acquisition
// mutex) rather than the registry's callback-bundle mutex.
type componentState struct {
	status                componentStatus
	startStopTimestampMs  int64
	accumulatedRealTimeMs int64
	properties            map[PropertyKey]float32
}

func newComponentState() *componentState {
	return &componentState{properties: make(map[PropertyKey]float32)}
}

// Core is the acquisition pipeline for one transport: packet reassembly
// feeding a worker goroutine that dispatches reports, drives the execution
// state machine, polls for spectra, and serves the configuration
// rendezvous. One Core is created per physical device connection.
type Core struct {
	transport      transport.Transport
	stream         streamer.Streamer
	registry       *registry
	neutronIsGamma bool

	// mu is the acquisition mutex: execution state, per-slot status /
	// timestamps / accumulators, rendezvous state, discovery state, and
	// poller timing all live behind it. Never invoke a Sink while holding it.
	mu            sync.Mutex
	currentState  ExecutionState
	requiredState requestState

	gamma   *componentState
	neutron *componentState
	dose    *componentState

	ignoreFirstSpectrum   bool
	startAcquisitionTsMs  int64
	accumulatedRealTimeMs int64

	reportType            reportTypeState
	lastSpectrumRequestMs int64
	nextQueryTimeMs       int64
	spectrumResponseSeen  bool

	configState  configQueryState
	configResult []byte

	// wake interrupts the worker's poll/process wait; buffered so Signal
	// never blocks the caller.
	wake chan struct{}
	// configSignal wakes a GetConfigurationData caller waiting on the
	// rendezvous; buffered the same way.
	configSignal chan struct{}

	workerWg      sync.WaitGroup
	workerRunning bool

	errMu   sync.Mutex
	pending []ErrorEvent
}

// New constructs a Core bound to t and stream. neutronIsGamma mirrors the
// single-sigma hardware variant where the neutron component is served by
// the same physical detector as gamma.
func New(t transport.Transport, stream streamer.Streamer, neutronIsGamma bool) *Core {
	c := &Core{
		transport:      t,
		stream:         stream,
		registry:       newRegistry(),
		neutronIsGamma: neutronIsGamma,
		gamma:          newComponentState(),
		neutron:        newComponentState(),
		dose:           newComponentState(),
		wake:           make(chan struct{}, 1),
		configSignal:   make(chan struct{}, 1),
	}
	t.SetDataReadyCallback(c.onTransportData)
	t.SetErrorCallback(c.onTransportError)
	return c
}

func (c *Core) componentStateFor(componentID byte) *componentState {
	switch componentID {
	case wire.ComponentGamma:
		return c.gamma
	case wire.ComponentNeutron:
		return c.neutron
	case wire.ComponentDose:
		return c.dose
	default:
		return nil
	}
}

func (c *Core) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Reset clears the session clock, report-type discovery and poll timers,
// and arms the discard of the next spectrum report. It does not touch
// registered sinks, component status, or the configuration rendezvous.
func (c *Core) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ignoreFirstSpectrum = true
	c.accumulatedRealTimeMs = 0
	c.startAcquisitionTsMs = 0
	c.reportType = reportTypeUnknown
	c.spectrumResponseSeen = false
	c.lastSpectrumRequestMs = 0
	c.nextQueryTimeMs = 0
}

// AddComponent registers sink as the callback target for componentID.
// Unknown IDs are ignored.
func (c *Core) AddComponent(componentID byte, sink Sink) {
	c.registry.add(componentID, sink)
}

// RemoveComponent clears componentID's sink. Deliveries that start after
// this call returns do not reach the sink; one already looked up on the
// worker may still complete.
func (c *Core) RemoveComponent(componentID byte) {
	c.registry.remove(componentID)
}

// GetComponentProperty returns 0.0 for an unknown component or a missing key.
func (c *Core) GetComponentProperty(componentID byte, key PropertyKey) float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.componentStateFor(componentID)
	if s == nil {
		return 0
	}
	return s.properties[key]
}

// SetComponentProperty sets a numeric property on componentID; a no-op for
// an unknown component.
func (c *Core) SetComponentProperty(componentID byte, key PropertyKey, value float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.componentStateFor(componentID)
	if s == nil {
		return
	}
	s.properties[key] = value
}

// GetRealTime returns the accumulated real-time, in milliseconds, of the
// current or most recent acquisition on componentID.
func (c *Core) GetRealTime(componentID byte) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.componentStateFor(componentID)
	if s == nil {
		return 0
	}
	return s.accumulatedRealTimeMs
}

// ResetRealTime zeroes componentID's accumulated real-time.
func (c *Core) ResetRealTime(componentID byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.componentStateFor(componentID)
	if s == nil {
		return
	}
	s.accumulatedRealTimeMs = 0
}

// GetStartTime returns the start/stop timestamp of componentID's current or
// most recent acquisition, in Unix milliseconds.
func (c *Core) GetStartTime(componentID byte) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.componentStateFor(componentID)
	if s == nil {
		return 0
	}
	return s.startStopTimestampMs
}

// SetStartTime overrides componentID's start/stop timestamp.
func (c *Core) SetStartTime(componentID byte, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.componentStateFor(componentID)
	if s == nil {
		return
	}
	s.startStopTimestampMs = value
}

// StartProcessing starts acquisition on componentID, launching the worker
// (and the transport read loop) if the execution state is currently Idle.
// A component already Running is a no-op success.
func (c *Core) StartProcessing(componentID byte) bool {
	var threadWasExiting bool

	c.mu.Lock()
	threadWasExiting = c.currentState == StateFinishing || c.currentState == StateStopping
	c.mu.Unlock()

	if threadWasExiting {
		c.workerWg.Wait()
	}

	c.mu.Lock()
	s := c.componentStateFor(componentID)
	if s == nil && componentID != wire.ComponentConfiguration {
		c.mu.Unlock()
		return false
	}
	if s != nil {
		if s.status == statusRunning {
			c.mu.Unlock()
			return true
		}
		s.status = statusRunning
		s.startStopTimestampMs = nowMs()
		s.accumulatedRealTimeMs = 0
	}
	c.mu.Unlock()

	c.requestExecutionState(requestRun)
	return true
}

// StopProcessing stops acquisition on componentID. If force is true, stop
// immediately without draining in-flight packets, block for the worker to
// exit, and deliver a synchronous Finished(wasForced=true) event. If force
// is false, let the streamer's current contents drain first; Finished is
// delivered either mid-drain (when a packet's timestamp crosses the stop
// time) or at worker exit.
func (c *Core) StopProcessing(componentID byte, force bool) bool {
	var stopReading bool

	c.mu.Lock()
	s := c.componentStateFor(componentID)
	if s == nil && componentID != wire.ComponentConfiguration {
		c.mu.Unlock()
		return false
	}
	if s != nil {
		if s.status == statusStopped {
			c.mu.Unlock()
			return true
		}
		if force {
			s.status = statusStopped
		} else {
			s.status = statusFinishing
		}
		s.startStopTimestampMs = nowMs()
	}

	stopReading = c.gamma.status != statusRunning &&
		c.neutron.status != statusRunning &&
		c.dose.status != statusRunning &&
		c.configState != configWaiting
	lastRequest := c.lastSpectrumRequestMs
	c.mu.Unlock()

	if stopReading {
		wait := spectrumTransmissionTimeMs - (nowMs() - lastRequest)
		if wait > 0 {
			time.Sleep(time.Duration(wait) * time.Millisecond)
		}

		if force {
			c.requestExecutionState(requestStop)
		} else {
			c.requestExecutionState(requestFinish)
		}
		c.signal(c.wake)

		if force {
			c.workerWg.Wait()
		}
	}

	if force && s != nil {
		c.registry.deliver(componentID, Event{Kind: EventFinished, Finish: FinishEvent{WasForced: true}})
	}

	return true
}

// requestExecutionState records the desired state and, if currently Idle
// and asked to Run, starts the worker.
func (c *Core) requestExecutionState(req requestState) {
	c.mu.Lock()
	c.requiredState = req
	shouldStart := req == requestRun && c.currentState == StateIdle
	c.mu.Unlock()

	if shouldStart {
		c.startWorker()
	} else {
		c.signal(c.wake)
	}
}

func (c *Core) startWorker() {
	c.mu.Lock()
	if c.workerRunning {
		c.mu.Unlock()
		return
	}
	c.workerRunning = true
	c.currentState = StateRunning
	c.ignoreFirstSpectrum = true
	c.accumulatedRealTimeMs = 0
	c.mu.Unlock()

	if err := c.transport.BeginReading(); err != nil {
		c.raiseError(ErrorEvent{Kind: ErrorTransport, Message: fmt.Sprintf("begin reading: %v", err)})
	}

	c.sendCompressionSetting(false)

	c.workerWg.Add(1)
	go c.workerLoop()
}

func (c *Core) onTransportData(data []byte) {
	if !c.stream.AddIncomingData(data) {
		c.raiseError(ErrorEvent{Kind: ErrorTransport, Message: "reassembly buffer overflow"})
	}
	c.signal(c.wake)
}

func (c *Core) onTransportError(code int, message string) {
	c.raiseError(ErrorEvent{Kind: ErrorTransport, Code: code, Message: message})
	c.signal(c.wake)
}

func (c *Core) raiseError(e ErrorEvent) {
	c.errMu.Lock()
	c.pending = append(c.pending, e)
	c.errMu.Unlock()
}

// drainErrors multicasts every pending error to each non-stopped component
// with events delivered outside of any lock.
func (c *Core) drainErrors() {
	c.errMu.Lock()
	errs := c.pending
	c.pending = nil
	c.errMu.Unlock()

	if len(errs) == 0 {
		return
	}

	c.mu.Lock()
	active := []byte{}
	if c.gamma.status != statusStopped {
		active = append(active, wire.ComponentGamma)
	}
	if c.neutron.status != statusStopped {
		active = append(active, wire.ComponentNeutron)
	}
	if c.dose.status != statusStopped {
		active = append(active, wire.ComponentDose)
	}
	c.mu.Unlock()

	for _, e := range errs {
		for _, id := range active {
			c.registry.deliver(id, Event{Kind: EventError, Failure: e})
		}
	}
}

