package tpx3

// hitRolloverMargin is the empirical lead the coarse hit counter can take
// over the trigger counter before wrapping into the next 30-bit epoch
// (spec §4.3 "up to ~10 000 packets").
const hitRolloverMargin = 0x0040_0000

// epochExtension is added to ts_raw when the hit-relative correction
// determines the coarse counter has already wrapped ahead of the trigger.
const epochExtension = 0x4000_0000

// epochGapThreshold is the backward jump (in 30-bit trigger units) beyond
// which a new trigger value is treated as a rollover rather than a
// time-ordering anomaly (spec §4.3, §4.4).
const epochGapThreshold = 1 << 29

// CorrectHitRollover extends a coarse timestamp that has wrapped its 30-bit
// counter ahead of the trigger's still-unwrapped counter within the same
// trigger interval (spec §4.3, hit-relative correction).
func CorrectHitRollover(tsRaw, currentTrigger uint32) uint32 {
	if tsRaw+hitRolloverMargin < currentTrigger {
		return tsRaw + epochExtension
	}
	return tsRaw
}

// TriggerEpochTracker advances a 64-bit (epoch, trigger) pair per chip as
// successive 30-bit trigger values are observed, detecting rollovers versus
// genuine time-ordering anomalies (spec §4.3, §4.4).
type TriggerEpochTracker struct {
	have    bool
	epoch   uint32
	trigger uint32
}

// EpochTriggerKey is the merge-ordering key for a chip's current pulse.
type EpochTriggerKey struct {
	Epoch   uint32
	Trigger uint32
}

// Observe folds a newly seen 30-bit trigger value into the tracker and
// returns the resulting (epoch, trigger) key plus whether the update looked
// like an unexplained backward jump (a TimeOrdering warning condition).
func (t *TriggerEpochTracker) Observe(newTrigger uint32) (key EpochTriggerKey, anomalous bool) {
	if !t.have {
		t.have = true
		t.epoch = 0
		t.trigger = newTrigger
		return EpochTriggerKey{Epoch: t.epoch, Trigger: t.trigger}, false
	}

	switch {
	case newTrigger >= t.trigger:
		// Monotone advance within the same epoch.
	case t.trigger-newTrigger > epochGapThreshold:
		// Backward jump large enough to be a 30-bit rollover.
		t.epoch++
	default:
		// Backward jump too small to be a rollover: non-fatal anomaly.
		// Treated as starting a new epoch per spec §4.4 failure mode.
		t.epoch++
		anomalous = true
	}
	t.trigger = newTrigger
	return EpochTriggerKey{Epoch: t.epoch, Trigger: t.trigger}, anomalous
}

// Current returns the tracker's current key without observing a new value.
func (t *TriggerEpochTracker) Current() EpochTriggerKey {
	return EpochTriggerKey{Epoch: t.epoch, Trigger: t.trigger}
}

// Less reports whether a sorts before b in (epoch, trigger) order.
func (a EpochTriggerKey) Less(b EpochTriggerKey) bool {
	if a.Epoch != b.Epoch {
		return a.Epoch < b.Epoch
	}
	return a.Trigger < b.Trigger
}
