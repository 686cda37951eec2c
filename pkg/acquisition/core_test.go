package acquisition

import (
	"testing"
	"time"

	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

func TestStartProcessingLaunchesWorker(t *testing.T) {
	c, ft := newTestCore()

	if !c.StartProcessing(wire.ComponentGamma) {
		t.Fatal("StartProcessing returned false")
	}

	deadline := time.Now().Add(time.Second)
	for !ft.isReading() {
		if time.Now().After(deadline) {
			t.Fatal("transport never entered reading state")
		}
		time.Sleep(time.Millisecond)
	}

	c.mu.Lock()
	status := c.gamma.status
	c.mu.Unlock()
	if status != statusRunning {
		t.Fatalf("gamma status = %v, want statusRunning", status)
	}

	if !c.StopProcessing(wire.ComponentGamma, true) {
		t.Fatal("StopProcessing returned false")
	}
}

func TestStopProcessingForceDeliversSingleFinishedEvent(t *testing.T) {
	c, ft := newTestCore()
	sink := &recordingSink{}
	c.AddComponent(wire.ComponentGamma, sink)

	if !c.StartProcessing(wire.ComponentGamma) {
		t.Fatal("StartProcessing returned false")
	}
	if !c.StopProcessing(wire.ComponentGamma, true) {
		t.Fatal("StopProcessing returned false")
	}

	if ft.isReading() {
		t.Fatal("transport still reading after forced stop")
	}

	events := sink.all()
	finished := 0
	for _, e := range events {
		if e.Kind == EventFinished {
			finished++
			if !e.Finish.WasForced {
				t.Fatalf("expected WasForced=true, got %+v", e.Finish)
			}
		}
	}
	if finished != 1 {
		t.Fatalf("got %d Finished events, want exactly 1: %+v", finished, events)
	}

	c.mu.Lock()
	status := c.gamma.status
	state := c.currentState
	c.mu.Unlock()
	if status != statusStopped {
		t.Fatalf("gamma status = %v, want statusStopped", status)
	}
	if state != StateIdle {
		t.Fatalf("currentState = %v, want StateIdle", state)
	}
}

func TestStopProcessingUnknownComponentFails(t *testing.T) {
	c, _ := newTestCore()
	if c.StopProcessing(0xFE, true) {
		t.Fatal("expected StopProcessing on an unknown component to fail")
	}
}

func TestComponentPropertyRoundTrip(t *testing.T) {
	c, _ := newTestCore()

	if got := c.GetComponentProperty(wire.ComponentGamma, PropertyGammaTemperatureC); got != 0 {
		t.Fatalf("default property = %v, want 0", got)
	}
	c.SetComponentProperty(wire.ComponentGamma, PropertyGammaTemperatureC, 21.5)
	if got := c.GetComponentProperty(wire.ComponentGamma, PropertyGammaTemperatureC); got != 21.5 {
		t.Fatalf("property = %v, want 21.5", got)
	}

	// Unknown components are a silent no-op, not a panic.
	c.SetComponentProperty(0xFE, PropertyGammaTemperatureC, 1)
	if got := c.GetComponentProperty(0xFE, PropertyGammaTemperatureC); got != 0 {
		t.Fatalf("unknown-component property = %v, want 0", got)
	}
}

func TestRealTimeAndStartTimeAccessors(t *testing.T) {
	c, _ := newTestCore()

	c.SetStartTime(wire.ComponentGamma, 12345)
	if got := c.GetStartTime(wire.ComponentGamma); got != 12345 {
		t.Fatalf("GetStartTime = %d, want 12345", got)
	}

	c.mu.Lock()
	c.gamma.accumulatedRealTimeMs = 999
	c.mu.Unlock()
	if got := c.GetRealTime(wire.ComponentGamma); got != 999 {
		t.Fatalf("GetRealTime = %d, want 999", got)
	}
	c.ResetRealTime(wire.ComponentGamma)
	if got := c.GetRealTime(wire.ComponentGamma); got != 0 {
		t.Fatalf("GetRealTime after reset = %d, want 0", got)
	}
}
