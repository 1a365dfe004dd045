package cluster

import (
	"context"
	"math"

	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

// GraphAlgorithm builds a proximity graph over the hit stream and resolves
// connected components with union-find, union by rank and path compression
// (spec §4.6).
type GraphAlgorithm struct{}

type unionFind struct {
	parent []int32
	rank   []uint8
}

func newUnionFind(n int) *unionFind {
	parent := make([]int32, n)
	for i := range parent {
		parent[i] = int32(i)
	}
	return &unionFind{parent: parent, rank: make([]uint8, n)}
}

func (u *unionFind) find(x int32) int32 {
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind) union(a, b int32) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// Cluster implements connected-components clustering over a time-ordered
// hit slice (spec §4.6). A hit is connected to any prior hit within the
// spatial radius and ToF window found via a bucketed grid broad phase.
func (GraphAlgorithm) Cluster(ctx context.Context, hits []tpx3.Hit, labels []int32, cfg Config, stats *tpx3.Stats) (int, error) {
	resetLabels(labels)
	n := len(hits)
	if n == 0 {
		return 0, nil
	}

	windowTicks := cfg.windowTicks()
	radius := cfg.Radius
	cellSize := int(math.Ceil(radius))
	if cellSize < 1 {
		cellSize = 1
	}
	cols := cfg.detectorWidth()/cellSize + 1
	rows := cfg.detectorHeight()/cellSize + 1

	uf := newUnionFind(n)
	grid := map[int][]int{}
	cellOf := func(x, y uint16) int {
		return (int(y)/cellSize)*cols + int(x)/cellSize
	}

	for i := 0; i < n; i++ {
		if i%clusterCheckpointInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		h := hits[i]
		cx := int(h.X) / cellSize
		cy := int(h.Y) / cellSize

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				ncx, ncy := cx+dx, cy+dy
				if ncx < 0 || ncy < 0 || ncx >= cols || ncy >= rows {
					continue
				}
				for _, j := range grid[ncy*cols+ncx] {
					other := hits[j]
					if absDiffU32(h.ToF, other.ToF) > windowTicks {
						continue
					}
					if withinSpatialWindow(h.X, h.Y, other.X, other.Y, radius) {
						uf.union(int32(i), int32(j))
					}
				}
			}
		}

		key := cellOf(h.X, h.Y)
		grid[key] = append(grid[key], i)
	}

	rootToLabel := map[int32]int32{}
	nextClusterID := int32(0)
	for i := 0; i < n; i++ {
		root := uf.find(int32(i))
		id, ok := rootToLabel[root]
		if !ok {
			id = nextClusterID
			nextClusterID++
			rootToLabel[root] = id
		}
		labels[i] = id
	}

	return enforceClusterSizeBounds(labels, int(nextClusterID), cfg, stats)
}
