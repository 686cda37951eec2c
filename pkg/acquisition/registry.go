package acquisition

import (
	"sync"

	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

// registry holds the three fixed components' callback sinks under a mutex
// of its own, separate from the acquisition mutex that guards status,
// timestamps, and accumulators (see core.go). This split lets the worker
// look up a sink, release the registry mutex, and only then invoke it,
// which is what keeps the "never call back under a lock" rule honest.
type registry struct {
	mu sync.Mutex

	gamma   Sink
	neutron Sink
	dose    Sink
}

func newRegistry() *registry {
	return &registry{}
}

// add installs sink for componentID. Unknown IDs are ignored.
func (r *registry) add(componentID byte, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch componentID {
	case wire.ComponentGamma:
		r.gamma = sink
	case wire.ComponentNeutron:
		r.neutron = sink
	case wire.ComponentDose:
		r.dose = sink
	}
}

// remove clears the sink for componentID. Unknown IDs are ignored.
func (r *registry) remove(componentID byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch componentID {
	case wire.ComponentGamma:
		r.gamma = nil
	case wire.ComponentNeutron:
		r.neutron = nil
	case wire.ComponentDose:
		r.dose = nil
	}
}

// sinkFor looks up componentID's sink under the registry mutex. Callers
// must not invoke the returned Sink while still holding any other lock.
func (r *registry) sinkFor(componentID byte) Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch componentID {
	case wire.ComponentGamma:
		return r.gamma
	case wire.ComponentNeutron:
		return r.neutron
	case wire.ComponentDose:
		return r.dose
	default:
		return nil
	}
}

// deliver looks up componentID's sink and, if present, calls it outside any
// lock. A nil sink is a silent no-op: a component can be started without
// ever registering a listener.
func (r *registry) deliver(componentID byte, e Event) {
	if sink := r.sinkFor(componentID); sink != nil {
		sink.Deliver(e)
	}
}
