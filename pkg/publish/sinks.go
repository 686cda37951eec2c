package publish

import (
	"log"

	"github.com/kromeklabs/spectro-driver/pkg/acquisition"
)

func sumCounts(counts []uint32) uint64 {
	var total uint64
	for _, c := range counts {
		total += uint64(c)
	}
	return total
}

// publishSpectrum CBOR-encodes counts and writes it alongside the running
// total to key.
func (b *Bridge) publishSpectrum(key string, counts []uint32) {
	encoded, err := encodeSpectrum(counts)
	if err != nil {
		log.Printf("publish: failed to encode spectrum for %s: %v", key, err)
		return
	}
	if err := b.redis.WriteBytes(key, FieldSpectrum, encoded); err != nil {
		log.Printf("publish: failed to write %s spectrum: %v", key, err)
		return
	}
	if err := b.redis.WriteAndPublishInt(key, FieldCount, int(sumCounts(counts))); err != nil {
		log.Printf("publish: failed to write %s count: %v", key, err)
	}
}

// deliverGamma handles events for the gamma channel, accumulating the
// 4096-channel histogram and flushing a snapshot once per spectrum frame
// rather than once per channel.
func (b *Bridge) deliverGamma(e acquisition.Event) {
	switch e.Kind {
	case acquisition.EventCount:
		if snapshot, ok := b.gamma.add(e.Count.Channel, e.Count.Count, e.Count.Timestamp); ok {
			b.publishSpectrum(KeyGamma, snapshot)
		}
		b.writeState(KeyGamma, StateRunning)
	case acquisition.EventFinished:
		b.publishSpectrum(KeyGamma, b.gamma.snapshot())
		b.gamma.reset()
		b.writeState(KeyGamma, StateStopped)
	case acquisition.EventError:
		b.writeError(KeyGamma, e.Failure)
	}
}

// deliverNeutron handles events for the neutron channel. Neutron counts
// have no per-channel spectrum, only a running total.
func (b *Bridge) deliverNeutron(e acquisition.Event) {
	switch e.Kind {
	case acquisition.EventCount:
		b.neutron.add(0, e.Count.Count, e.Count.Timestamp)
		if err := b.redis.WriteAndPublishInt(KeyNeutron, FieldCount, int(sumCounts(b.neutron.snapshot()))); err != nil {
			log.Printf("publish: failed to write neutron count: %v", err)
		}
		b.writeState(KeyNeutron, StateRunning)
	case acquisition.EventFinished:
		b.neutron.reset()
		b.writeState(KeyNeutron, StateStopped)
	case acquisition.EventError:
		b.writeError(KeyNeutron, e.Failure)
	}
}

// deliverDose handles events for the dose channel, a plain periodic sample
// with no accumulation needed at this layer.
func (b *Bridge) deliverDose(e acquisition.Event) {
	switch e.Kind {
	case acquisition.EventDose:
		if err := b.redis.WriteAndPublishString(KeyDose, FieldDoseMicroSv, formatMicroSv(e.Dose.DoseMicroSv)); err != nil {
			log.Printf("publish: failed to write dose: %v", err)
		}
		if err := b.redis.WriteString(KeyDose, FieldDoseRate, formatMicroSv(e.Dose.RateMicroSvPerHour)); err != nil {
			log.Printf("publish: failed to write dose rate: %v", err)
		}
		b.writeState(KeyDose, StateRunning)
	case acquisition.EventFinished:
		b.writeState(KeyDose, StateStopped)
	case acquisition.EventError:
		b.writeError(KeyDose, e.Failure)
	}
}
