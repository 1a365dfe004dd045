package extract

import "github.com/next-exp/tpx3pipe/internal/tpx3"

type clusterAccumulator struct {
	sumXToT  float64
	sumYToT  float64
	sumX     float64
	sumY     float64
	sumToT   uint64
	count    uint16
	tofSeen  bool
	tofFirst uint32
	chipMode map[uint8]int
}

// Extract computes one Neutron per non-empty, non-dropped cluster in
// hits/labels, in ascending cluster id order (spec §4.7). hits must be
// sorted non-decreasing by ToF, as guaranteed by the merger and every
// clusterer's contract.
func Extract(hits []tpx3.Hit, labels []int32, nClusters int, cfg Config) []Neutron {
	if nClusters <= 0 {
		return nil
	}

	accs := make([]clusterAccumulator, nClusters)
	for i := range accs {
		accs[i].chipMode = map[uint8]int{}
	}

	for i, label := range labels {
		if label < 0 || int(label) >= nClusters {
			continue
		}
		hit := hits[i]
		acc := &accs[label]

		if !acc.tofSeen {
			acc.tofFirst = hit.ToF
			acc.tofSeen = true
		}
		acc.chipMode[hit.ChipID]++

		if hit.ToT < cfg.MinToTThreshold {
			continue
		}
		acc.count++
		acc.sumToT += uint64(hit.ToT)
		acc.sumXToT += float64(hit.X) * float64(hit.ToT)
		acc.sumYToT += float64(hit.Y) * float64(hit.ToT)
		acc.sumX += float64(hit.X)
		acc.sumY += float64(hit.Y)
	}

	superRes := cfg.SuperResolutionFactor
	if superRes == 0 {
		superRes = 1.0
	}

	neutrons := make([]Neutron, 0, nClusters)
	for _, acc := range accs {
		if acc.sumToT == 0 || acc.count == 0 {
			continue
		}

		var x, y float64
		if cfg.WeightedByToT && acc.sumToT > 0 {
			x = acc.sumXToT / float64(acc.sumToT) * superRes
			y = acc.sumYToT / float64(acc.sumToT) * superRes
		} else {
			n := float64(acc.count)
			x = acc.sumX / n * superRes
			y = acc.sumY / n * superRes
		}

		tot := acc.sumToT
		if tot > 0xFFFF {
			tot = 0xFFFF
		}

		neutrons = append(neutrons, Neutron{
			X:      x,
			Y:      y,
			ToF:    acc.tofFirst,
			ToT:    uint16(tot),
			NHits:  acc.count,
			ChipID: modeChip(acc.chipMode),
		})
	}
	return neutrons
}

// modeChip returns the most frequently observed chip id, breaking ties by
// the lowest chip id (spec §4.7: "all equal by construction ... otherwise
// the mode").
func modeChip(counts map[uint8]int) uint8 {
	var best uint8
	bestCount := -1
	for chip, count := range counts {
		if count > bestCount || (count == bestCount && chip < best) {
			best = chip
			bestCount = count
		}
	}
	return best
}
