package publish

import "sync"

// channelAccumulator holds a running per-channel count array for one
// component, mirroring the gammaSpectrum[4096] array the device itself
// accumulates between reads. It exists purely to turn the stream of
// per-channel CountEvents into a single snapshot worth CBOR-encoding.
type channelAccumulator struct {
	mu     sync.Mutex
	counts []uint32
	lastTs int64
}

func newChannelAccumulator(channels int) *channelAccumulator {
	return &channelAccumulator{counts: make([]uint32, channels)}
}

// add merges count into channel and reports whether ts belongs to a new
// frame than the previous add call, returning a snapshot taken just before
// this call's counts were merged in. Callers use the returned snapshot to
// publish one update per frame instead of one per channel.
func (a *channelAccumulator) add(channel int, count uint32, ts int64) ([]uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var snapshot []uint32
	newFrame := a.lastTs != 0 && ts != a.lastTs
	if newFrame {
		snapshot = make([]uint32, len(a.counts))
		copy(snapshot, a.counts)
	}

	if channel >= 0 && channel < len(a.counts) {
		a.counts[channel] += count
	}
	a.lastTs = ts

	return snapshot, newFrame
}

func (a *channelAccumulator) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.counts {
		a.counts[i] = 0
	}
}

// snapshot returns a copy of the current counts, safe to encode without
// holding the accumulator's lock.
func (a *channelAccumulator) snapshot() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]uint32, len(a.counts))
	copy(out, a.counts)
	return out
}
