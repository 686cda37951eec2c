package acquisition

import (
	"errors"
	"time"

	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

// ErrConfigurationBusy is returned when a second configuration call arrives
// while one is already in flight: at most one rendezvous is ever pending
// per transport.
var ErrConfigurationBusy = errors.New("acquisition: a configuration request is already in flight")

// ErrConfigurationTimeout is returned when no matching response arrives
// within configRendezvousTimeout, or when the response is too short to
// carry a payload.
var ErrConfigurationTimeout = errors.New("acquisition: configuration request timed out")

// configIDs requiring the request to be addressed to InterfaceBoard rather
// than the literal component asked for.
var interfaceBoardGetConfigIDs = map[uint16]bool{0x88: true, 0xC5: true, 0xC8: true}
var interfaceBoardSetConfigIDs = map[uint16]bool{0x47: true, 0x08: true, 0x11: true}

const configUseParentMask = 0x0100

// GetConfigurationData issues a blocking configuration-get request and
// waits up to 3 seconds for the matching response. On success it returns
// the response payload (with a trailing serial-number tag byte appended
// for configId==0x88 on a real detector component).
func (c *Core) GetConfigurationData(componentID byte, configID uint16) ([]byte, error) {
	originalComponentID := componentID

	if configID&configUseParentMask != 0 || interfaceBoardGetConfigIDs[configID] {
		componentID = wire.ComponentInterfaceBoard
	}
	if componentID == wire.ComponentDose {
		componentID = wire.ComponentGamma
	}
	if c.neutronIsGamma && componentID == wire.ComponentNeutron {
		componentID = wire.ComponentGamma
	}

	c.mu.Lock()
	if c.configState != configIdle {
		c.mu.Unlock()
		return nil, ErrConfigurationBusy
	}
	c.configState = configWaiting
	c.configResult = nil
	c.mu.Unlock()
	select {
	case <-c.configSignal:
	default:
	}

	if !c.StartProcessing(wire.ComponentConfiguration) {
		c.mu.Lock()
		c.configState = configIdle
		c.mu.Unlock()
		return nil, errors.New("acquisition: could not start worker for configuration request")
	}

	if err := c.sendBasicRequest(componentID, byte(configID&0xFF), nil); err != nil {
		c.mu.Lock()
		c.configState = configIdle
		c.mu.Unlock()
		c.StopProcessing(wire.ComponentConfiguration, true)
		return nil, err
	}

	select {
	case <-c.configSignal:
	case <-time.After(configRendezvousTimeout):
	}

	// Whether the wait succeeded, failed, or timed out, the rendezvous is
	// over: close the connection down if nothing else is keeping it open.
	c.mu.Lock()
	success := c.configState == configSuccess
	result := c.configResult
	c.configState = configIdle
	c.configResult = nil
	c.mu.Unlock()

	c.StopProcessing(wire.ComponentConfiguration, true)

	if !success {
		return nil, ErrConfigurationTimeout
	}

	if configID == 0x88 {
		switch originalComponentID {
		case wire.ComponentGamma:
			result = append(result, 'G')
		case wire.ComponentNeutron:
			result = append(result, 'N')
		case wire.ComponentDose:
			result = append(result, 'D')
		}
	}
	return result, nil
}

// SetConfigurationData issues a fire-and-forget configuration-set request.
func (c *Core) SetConfigurationData(componentID byte, configID uint16, data []byte) error {
	if configID&configUseParentMask != 0 || interfaceBoardSetConfigIDs[configID] {
		componentID = wire.ComponentInterfaceBoard
	}
	return c.sendBasicRequest(componentID, byte(configID&0xFF), data)
}

// handleConfigurationResponse ingests a configuration-get report: if no
// rendezvous is waiting, the response is dropped (it answers nobody).
func (c *Core) handleConfigurationResponse(packet []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.configState != configWaiting {
		return
	}

	// The payload is everything between the 5-byte header and the trailing
	// 2-byte CRC.
	if len(packet) < wire.HeaderSize+2 {
		c.configState = configError
		c.signal(c.configSignal)
		return
	}
	payload := packet[wire.HeaderSize : len(packet)-2]
	c.configResult = append([]byte{}, payload...)
	c.configState = configSuccess
	c.signal(c.configSignal)
}
