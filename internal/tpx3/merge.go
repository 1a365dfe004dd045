package tpx3

import (
	"container/heap"
	"context"
	"sort"
)

// mergeCheckpointInterval is the cancellation-polling cadence in merged
// hits, per spec §5 ("at least once per 4096 merged hits").
const mergeCheckpointInterval = 4096

// PulseBatch is the set of hits belonging to one trigger interval on one
// chip, sorted by ToF (spec §3 "Pulse frame", §4.4).
type PulseBatch struct {
	ChipID uint8
	Key    EpochTriggerKey
	Hits   []Hit
}

// sortPendingStable orders one chip's pending hits by ToF, preserving
// decode order for equal ToF values so within-chip ties resolve by
// original packet order rather than an arbitrary permutation.
func sortPendingStable(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].ToF < hits[j].ToF })
}

// sortMergedStable orders hits drawn from possibly several chips' pulses
// sharing the same (epoch, trigger) key. Ties in ToF are broken by chip id,
// and remaining ties by each chip's already-stable decode order (spec §8
// scenario E: synchronous cross-chip pulses order by (chip_id, original
// index)). Sorting by ToF then ChipID, stably, yields exactly that chain:
// decode order is untouched for hits that share both keys.
func sortMergedStable(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].ToF != hits[j].ToF {
			return hits[i].ToF < hits[j].ToF
		}
		return hits[i].ChipID < hits[j].ChipID
	})
}

// chipPulseReader walks a single chip's ordered sections packet by packet,
// yielding one PulseBatch per trigger interval (spec §4.4).
type chipPulseReader struct {
	data     []byte
	sections []Section
	cfg      DecodeConfig
	stats    *Stats

	sectionIdx int
	packetIdx  int

	tracker        TriggerEpochTracker
	haveTrigger    bool
	currentTrigger uint32
	currentKey     EpochTriggerKey
	pending        []Hit

	seeded bool
	chipID uint8
}

func newChipPulseReader(data []byte, sections []Section, cfg DecodeConfig, stats *Stats) *chipPulseReader {
	r := &chipPulseReader{data: data, sections: sections, cfg: cfg, stats: stats}
	if len(sections) > 0 {
		r.chipID = sections[0].ChipID
		if sections[0].InitialTrigger != nil {
			key, anomalous := r.tracker.Observe(*sections[0].InitialTrigger)
			if anomalous && stats != nil {
				stats.TimeOrderingAnomalies.Add(1)
			}
			r.currentKey = key
			r.currentTrigger = *sections[0].InitialTrigger
			r.haveTrigger = true
		}
	}
	return r
}

// next returns the next ready pulse batch, or nil when the chip's section
// stream is exhausted.
func (r *chipPulseReader) next() *PulseBatch {
	for r.sectionIdx < len(r.sections) {
		section := r.sections[r.sectionIdx]
		body := r.data[section.StartOffset:section.EndOffset]
		numPackets := len(body) / packetSize

		for r.packetIdx < numPackets {
			offset := r.packetIdx * packetSize
			raw := littleEndianUint64(body[offset : offset+packetSize])
			p := Packet(raw)
			r.packetIdx++

			switch {
			case p.IsTrigger():
				newTrigger := p.TriggerTimestamp()
				var closed *PulseBatch
				if r.haveTrigger {
					sortPendingStable(r.pending)
					closed = &PulseBatch{ChipID: r.chipID, Key: r.currentKey, Hits: r.pending}
					r.pending = nil
				}
				key, anomalous := r.tracker.Observe(newTrigger)
				if anomalous && r.stats != nil {
					r.stats.TimeOrderingAnomalies.Add(1)
				}
				r.currentKey = key
				r.currentTrigger = newTrigger
				r.haveTrigger = true
				if closed != nil {
					return closed
				}
			case p.IsHit():
				if !r.haveTrigger {
					if r.stats != nil {
						r.stats.HitsWithoutTrigger.Add(1)
					}
					continue
				}
				xLocal, yLocal := p.LocalCoordinates()
				transform := r.cfg.ChipTransforms[section.ChipID]
				x, y := transform.Apply(xLocal, yLocal)

				tsRaw := (uint32(p.Spidr()) << 14) | uint32(p.ToA())
				tsExt := CorrectHitRollover(tsRaw, r.currentTrigger)

				tof := tsExt - r.currentTrigger
				if tof > r.cfg.TriggerPeriodTicks {
					tof -= r.cfg.TriggerPeriodTicks
				}

				r.pending = append(r.pending, NewHit(tof, x, y, tsExt, p.ToT(), section.ChipID))
			}
		}

		r.sectionIdx++
		r.packetIdx = 0
	}

	if r.haveTrigger && len(r.pending) > 0 {
		sortPendingStable(r.pending)
		batch := &PulseBatch{ChipID: r.chipID, Key: r.currentKey, Hits: r.pending}
		r.pending = nil
		return batch
	}
	return nil
}

// pulseHeap is a min-heap of pending PulseBatches ordered by (epoch, trigger).
type pulseHeap []*PulseBatch

func (h pulseHeap) Len() int            { return len(h) }
func (h pulseHeap) Less(i, j int) bool  { return h[i].Key.Less(h[j].Key) }
func (h pulseHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pulseHeap) Push(x interface{}) { *h = append(*h, x.(*PulseBatch)) }
func (h *pulseHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merger merges up to K per-chip ordered hit streams into one globally
// ordered stream under bounded memory (spec §4.4). It is single-threaded by
// contract and produces a serial iterator.
type Merger struct {
	readers map[uint8]*chipPulseReader
	heap    pulseHeap

	current    []Hit
	currentPos int
	seen       int
}

// NewMerger groups sections by chip and primes one pulse per chip.
func NewMerger(data []byte, sections []Section, cfg DecodeConfig, stats *Stats) *Merger {
	byChip := map[uint8][]Section{}
	for _, s := range sections {
		byChip[s.ChipID] = append(byChip[s.ChipID], s)
	}

	m := &Merger{readers: map[uint8]*chipPulseReader{}}
	for chipID, chipSections := range byChip {
		reader := newChipPulseReader(data, chipSections, cfg, stats)
		m.readers[chipID] = reader
		if batch := reader.next(); batch != nil {
			heap.Push(&m.heap, batch)
		}
	}
	heap.Init(&m.heap)
	return m
}

// Next returns the next globally ordered hit, polling ctx for cancellation
// at the cadence specified in spec §5.
func (m *Merger) Next(ctx context.Context) (Hit, bool, error) {
	for {
		if m.currentPos < len(m.current) {
			hit := m.current[m.currentPos]
			m.currentPos++
			m.seen++
			if m.seen%mergeCheckpointInterval == 0 {
				if err := ctx.Err(); err != nil {
					return Hit{}, false, err
				}
			}
			return hit, true, nil
		}

		if m.heap.Len() == 0 {
			return Hit{}, false, nil
		}

		if err := ctx.Err(); err != nil {
			return Hit{}, false, err
		}

		minKey := m.heap[0].Key
		var merged []Hit
		for m.heap.Len() > 0 && m.heap[0].Key == minKey {
			batch := heap.Pop(&m.heap).(*PulseBatch)
			merged = append(merged, batch.Hits...)

			if reader, ok := m.readers[batch.ChipID]; ok {
				if next := reader.next(); next != nil {
					heap.Push(&m.heap, next)
				}
			}
		}

		sortMergedStable(merged)
		m.current = merged
		m.currentPos = 0
	}
}
