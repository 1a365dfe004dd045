package cluster

import (
	"context"
	"math"

	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

const clusterCheckpointInterval = 4096

// cellSide is the spatial grid's cell side in detector pixels (spec §4.5).
const cellSide = 16

// bucketSlot is a live or retired cluster candidate owned by its pool index
// (spec §3 "Bucket", §9 "bucket pool owns buckets by index").
type bucketSlot struct {
	hits               []int
	xMin, xMax         uint16
	yMin, yMax         uint16
	startToF           uint32
	active             bool
	clusterID          int32
	cell               int
}

// AgeBucketAlgorithm is the reference clustering algorithm: an age-based
// bucket scan backed by a spatial grid of bucket ids (spec §4.5).
type AgeBucketAlgorithm struct{}

type bucketPool struct {
	slots []bucketSlot
	free  []int
	grid  map[int][]int
	cols  int
	rows  int
}

func newBucketPool(cfg Config) *bucketPool {
	cols := (cfg.detectorWidth() + cellSide - 1) / cellSide
	rows := (cfg.detectorHeight() + cellSide - 1) / cellSide
	return &bucketPool{grid: map[int][]int{}, cols: cols, rows: rows}
}

func (p *bucketPool) cellKey(x, y uint16) int {
	return (int(y)/cellSide)*p.cols + int(x)/cellSide
}

func (p *bucketPool) alloc() int {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx
	}
	p.slots = append(p.slots, bucketSlot{})
	return len(p.slots) - 1
}

func (p *bucketPool) seed(hitIdx int, hit tpx3.Hit) int {
	idx := p.alloc()
	cell := p.cellKey(hit.X, hit.Y)
	p.slots[idx] = bucketSlot{
		hits:      []int{hitIdx},
		xMin:      hit.X,
		xMax:      hit.X,
		yMin:      hit.Y,
		yMax:      hit.Y,
		startToF:  hit.ToF,
		active:    true,
		clusterID: tpx3.UnassignedCluster,
		cell:      cell,
	}
	p.grid[cell] = append(p.grid[cell], idx)
	return idx
}

func (p *bucketPool) extend(idx int, hitIdx int, hit tpx3.Hit) {
	s := &p.slots[idx]
	s.hits = append(s.hits, hitIdx)
	if hit.X < s.xMin {
		s.xMin = hit.X
	}
	if hit.X > s.xMax {
		s.xMax = hit.X
	}
	if hit.Y < s.yMin {
		s.yMin = hit.Y
	}
	if hit.Y > s.yMax {
		s.yMax = hit.Y
	}
}

func (p *bucketPool) release(idx int) {
	s := &p.slots[idx]
	s.active = false
	bucket := p.grid[s.cell]
	for i, v := range bucket {
		if v == idx {
			p.grid[s.cell] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	s.hits = nil
	p.free = append(p.free, idx)
}

// candidatesNear returns active bucket ids registered in the hit's cell and
// its eight neighbors (spec §4.5 "within one cell of the hit's cell").
func (p *bucketPool) candidatesNear(x, y uint16) []int {
	cx := int(x) / cellSide
	cy := int(y) / cellSide
	var out []int
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			ncx, ncy := cx+dx, cy+dy
			if ncx < 0 || ncy < 0 || ncx >= p.cols || ncy >= p.rows {
				continue
			}
			key := ncy*p.cols + ncx
			for _, idx := range p.grid[key] {
				if p.slots[idx].active {
					out = append(out, idx)
				}
			}
		}
	}
	return out
}

func (s *bucketSlot) accepts(hit tpx3.Hit, ceilRadius uint16, windowTicks uint32) bool {
	xLo := subClampU16(s.xMin, ceilRadius)
	xHi := addClampU16(s.xMax, ceilRadius)
	yLo := subClampU16(s.yMin, ceilRadius)
	yHi := addClampU16(s.yMax, ceilRadius)
	if hit.X < xLo || hit.X > xHi || hit.Y < yLo || hit.Y > yHi {
		return false
	}
	return hit.ToF-s.startToF <= windowTicks
}

func subClampU16(v, delta uint16) uint16 {
	if delta > v {
		return 0
	}
	return v - delta
}

func addClampU16(v, delta uint16) uint16 {
	sum := uint32(v) + uint32(delta)
	if sum > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(sum)
}

// Cluster implements the per-hit protocol of spec §4.5.
func (AgeBucketAlgorithm) Cluster(ctx context.Context, hits []tpx3.Hit, labels []int32, cfg Config, stats *tpx3.Stats) (int, error) {
	resetLabels(labels)
	if len(hits) == 0 {
		return 0, nil
	}

	scanInterval := cfg.ScanInterval
	if scanInterval <= 0 {
		scanInterval = 100
	}
	windowTicks := cfg.windowTicks()
	ceilRadius := uint16(math.Ceil(cfg.Radius))

	pool := newBucketPool(cfg)
	nextClusterID := int32(0)

	closeBucket := func(idx int) {
		s := &pool.slots[idx]
		size := len(s.hits)
		switch {
		case cfg.MaxClusterSize > 0 && size > cfg.MaxClusterSize:
			if stats != nil {
				stats.ClusteringOverflowCount.Add(1)
			}
		case size >= cfg.MinClusterSize:
			id := nextClusterID
			nextClusterID++
			for _, hidx := range s.hits {
				labels[hidx] = id
			}
		}
		pool.release(idx)
	}

	agingScan := func(refToF uint32) {
		for idx := range pool.slots {
			s := &pool.slots[idx]
			if !s.active {
				continue
			}
			if refToF-s.startToF > windowTicks {
				closeBucket(idx)
			}
		}
	}

	for i, hit := range hits {
		if i > 0 && i%scanInterval == 0 {
			agingScan(hit.ToF)
		}
		if i%clusterCheckpointInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}

		candidates := pool.candidatesNear(hit.X, hit.Y)
		best := -1
		for _, idx := range candidates {
			s := &pool.slots[idx]
			if !s.accepts(hit, ceilRadius, windowTicks) {
				continue
			}
			if best == -1 {
				best = idx
				continue
			}
			bs := &pool.slots[best]
			if s.startToF < bs.startToF || (s.startToF == bs.startToF && idx < best) {
				best = idx
			}
		}

		if best >= 0 {
			pool.extend(best, i, hit)
		} else {
			pool.seed(i, hit)
		}
	}

	lastToF := hits[len(hits)-1].ToF
	agingScan(lastToF + windowTicks + 1)

	return int(nextClusterID), nil
}
