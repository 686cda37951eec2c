package acquisition

import (
	"testing"
	"time"

	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

func buildConfigResponsePacket(componentID, reportID byte, payload []byte) []byte {
	total := wire.HeaderSize + len(payload) + 2
	buf := make([]byte, total)
	wire.PutHeader(buf, wire.Header{
		MessageSize: uint16(total),
		Mode:        0,
		ComponentID: componentID,
		ReportID:    reportID,
	})
	copy(buf[wire.HeaderSize:], payload)
	return buf
}

func TestGetConfigurationDataSuccessAppendsSerialTag(t *testing.T) {
	c, ft := newTestCore()

	const configID = 0x88
	payload := []byte{1, 2, 3, 4}

	ft.writeHook = func(data []byte) {
		h := wire.ParseHeader(data)
		if h.ReportID != byte(configID&0xFF) {
			return
		}
		c.handleConfigurationResponse(buildConfigResponsePacket(h.ComponentID, h.ReportID, payload))
	}

	got, err := c.GetConfigurationData(wire.ComponentGamma, configID)
	if err != nil {
		t.Fatalf("GetConfigurationData failed: %v", err)
	}
	want := append(append([]byte{}, payload...), 'G')
	if string(got) != string(want) {
		t.Fatalf("got %x, want %x", got, want)
	}

	// The worker should have wound back down: nothing is left running.
	deadline := time.Now().Add(time.Second)
	for ft.isReading() {
		if time.Now().After(deadline) {
			t.Fatal("transport still reading after configuration rendezvous completed")
		}
		time.Sleep(time.Millisecond)
	}

	c.mu.Lock()
	state := c.configState
	c.mu.Unlock()
	if state != configIdle {
		t.Fatalf("configState = %v, want configIdle", state)
	}
}

func TestGetConfigurationDataRewritesDoseToGamma(t *testing.T) {
	c, ft := newTestCore()

	const configID = 0x50 // not an InterfaceBoard-only config ID
	payload := []byte{0xAA}

	var sawComponentID byte
	ft.writeHook = func(data []byte) {
		h := wire.ParseHeader(data)
		if h.ReportID != byte(configID&0xFF) {
			return
		}
		sawComponentID = h.ComponentID
		c.handleConfigurationResponse(buildConfigResponsePacket(h.ComponentID, h.ReportID, payload))
	}

	if _, err := c.GetConfigurationData(wire.ComponentDose, configID); err != nil {
		t.Fatalf("GetConfigurationData failed: %v", err)
	}
	if sawComponentID != wire.ComponentGamma {
		t.Fatalf("request componentID = 0x%x, want Gamma (Dose is served by the Gamma detector)", sawComponentID)
	}
}

func TestGetConfigurationDataBusy(t *testing.T) {
	c, ft := newTestCore()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	ft.writeHook = func(data []byte) {
		h := wire.ParseHeader(data)
		if h.ReportID != 0x11 {
			return
		}
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		c.handleConfigurationResponse(buildConfigResponsePacket(h.ComponentID, h.ReportID, nil))
	}

	go func() {
		_, _ = c.GetConfigurationData(wire.ComponentGamma, 0x11)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first GetConfigurationData call never reached the transport")
	}

	if _, err := c.GetConfigurationData(wire.ComponentGamma, 0x11); err != ErrConfigurationBusy {
		t.Fatalf("got %v, want ErrConfigurationBusy", err)
	}

	close(release)
}

func TestGetConfigurationDataTimeout(t *testing.T) {
	c, _ := newTestCore()

	start := time.Now()
	_, err := c.GetConfigurationData(wire.ComponentGamma, 0x08)
	if err != ErrConfigurationTimeout {
		t.Fatalf("got %v, want ErrConfigurationTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < configRendezvousTimeout {
		t.Fatalf("returned after %v, want at least %v", elapsed, configRendezvousTimeout)
	}
}

func TestSetConfigurationDataRewritesToInterfaceBoard(t *testing.T) {
	c, ft := newTestCore()

	var sawComponentID byte
	ft.writeHook = func(data []byte) {
		h := wire.ParseHeader(data)
		sawComponentID = h.ComponentID
	}

	if err := c.SetConfigurationData(wire.ComponentGamma, 0x47, []byte{1}); err != nil {
		t.Fatalf("SetConfigurationData failed: %v", err)
	}
	if sawComponentID != wire.ComponentInterfaceBoard {
		t.Fatalf("request componentID = 0x%x, want InterfaceBoard (configID 0x47 is interface-board-only)", sawComponentID)
	}
}
