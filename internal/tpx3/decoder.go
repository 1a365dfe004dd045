package tpx3

// DecodeConfig carries the per-chip transforms and trigger period needed to
// turn a section's packets into Hits (spec §4.2).
type DecodeConfig struct {
	ChipTransforms    [256]AffineTransform
	TriggerPeriodTicks uint32
}

// DecodeSection transforms a single section's packets into Hit records,
// applying rollover correction and trigger-relative ToF computation
// (spec §4.2, §4.3). Hits observed before any trigger reference is known
// (neither inherited nor yet seen) are discarded and counted in stats.
func DecodeSection(data []byte, section Section, cfg DecodeConfig, stats *Stats) []Hit {
	body := data[section.StartOffset:section.EndOffset]
	numPackets := len(body) / packetSize

	hits := make([]Hit, 0, numPackets)

	var currentTrigger *uint32
	if section.InitialTrigger != nil {
		v := *section.InitialTrigger
		currentTrigger = &v
	}

	transform := cfg.ChipTransforms[section.ChipID]

	for i := 0; i < numPackets; i++ {
		offset := i * packetSize
		raw := littleEndianUint64(body[offset : offset+packetSize])
		p := Packet(raw)

		switch {
		case p.IsTrigger():
			ts := p.TriggerTimestamp()
			currentTrigger = &ts
		case p.IsHit():
			if currentTrigger == nil {
				if stats != nil {
					stats.HitsWithoutTrigger.Add(1)
				}
				continue
			}

			xLocal, yLocal := p.LocalCoordinates()
			x, y := transform.Apply(xLocal, yLocal)

			tsRaw := (uint32(p.Spidr()) << 14) | uint32(p.ToA())
			tsExt := CorrectHitRollover(tsRaw, *currentTrigger)

			tof := tsExt - *currentTrigger
			if tof > cfg.TriggerPeriodTicks {
				tof -= cfg.TriggerPeriodTicks
			}

			hits = append(hits, NewHit(tof, x, y, tsExt, p.ToT(), section.ChipID))
		}
	}

	return hits
}
