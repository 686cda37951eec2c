// Package publish bridges an acquisition.Core's events onto the scooter's
// Redis state bus: one hash per component (state, counts, dose rate,
// errors), a CBOR-encoded spectrum snapshot published on finish, and a
// blocking command-list watcher that drives Start/Stop/GetConfigurationData
// from outside the process. It is the replacement for the teacher's BLE
// Service, which performed the same job for nRF52 UART messages.
package publish

import (
	"log"

	"github.com/kromeklabs/spectro-driver/pkg/acquisition"
	redisclient "github.com/kromeklabs/spectro-driver/pkg/redis"
	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

// Bridge owns the three component sinks and the command watcher.
type Bridge struct {
	core  *acquisition.Core
	redis *redisclient.Client

	stopCh chan struct{}

	gamma   *channelAccumulator
	neutron *channelAccumulator
}

// New constructs a Bridge and registers its sinks with core. Call Start to
// launch the command watcher goroutine.
func New(core *acquisition.Core, redisClient *redisclient.Client) *Bridge {
	b := &Bridge{
		core:    core,
		redis:   redisClient,
		stopCh:  make(chan struct{}),
		gamma:   newChannelAccumulator(4096),
		neutron: newChannelAccumulator(1),
	}

	core.AddComponent(wire.ComponentGamma, acquisition.SinkFunc(b.deliverGamma))
	core.AddComponent(wire.ComponentNeutron, acquisition.SinkFunc(b.deliverNeutron))
	core.AddComponent(wire.ComponentDose, acquisition.SinkFunc(b.deliverDose))

	return b
}

// Start launches the Redis command watcher goroutine.
func (b *Bridge) Start() {
	go b.watchCommands()
}

// Stop signals the command watcher to exit and unregisters all sinks.
func (b *Bridge) Stop() {
	close(b.stopCh)
	b.core.RemoveComponent(wire.ComponentGamma)
	b.core.RemoveComponent(wire.ComponentNeutron)
	b.core.RemoveComponent(wire.ComponentDose)
}

func (b *Bridge) writeState(key, state string) {
	if err := b.redis.WriteAndPublishString(key, FieldState, state); err != nil {
		log.Printf("publish: failed to write %s state %q: %v", key, state, err)
	}
}

func (b *Bridge) writeError(key string, e acquisition.ErrorEvent) {
	msg := e.Message
	if err := b.redis.WriteAndPublishString(key, FieldError, msg); err != nil {
		log.Printf("publish: failed to write %s error: %v", key, err)
	}
}
