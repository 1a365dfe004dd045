package cluster

import (
	"context"
	"math"

	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

// DensityAlgorithm is a DBSCAN variant: a spatial grid gives the broad
// phase, region queries use precise Euclidean distance plus a ToF window,
// and clusters grow by seed expansion (spec §4.6).
type DensityAlgorithm struct{}

type dbscanGrid struct {
	cells    map[int][]int
	cellSize int
	cols     int
	rows     int
}

func newDBSCANGrid(hits []tpx3.Hit, cfg Config) *dbscanGrid {
	cellSize := int(math.Ceil(cfg.Radius))
	if cellSize < 1 {
		cellSize = 1
	}
	cols := cfg.detectorWidth()/cellSize + 1
	rows := cfg.detectorHeight()/cellSize + 1
	g := &dbscanGrid{cells: map[int][]int{}, cellSize: cellSize, cols: cols, rows: rows}
	for i, h := range hits {
		key := g.cellOf(h.X, h.Y)
		g.cells[key] = append(g.cells[key], i)
	}
	return g
}

func (g *dbscanGrid) cellOf(x, y uint16) int {
	cx := int(x) / g.cellSize
	cy := int(y) / g.cellSize
	return cy*g.cols + cx
}

func (g *dbscanGrid) regionQuery(hits []tpx3.Hit, idx int, epsSq float64, windowTicks uint32) []int {
	h := hits[idx]
	cx := int(h.X) / g.cellSize
	cy := int(h.Y) / g.cellSize

	var neighbors []int
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			ncx, ncy := cx+dx, cy+dy
			if ncx < 0 || ncy < 0 || ncx >= g.cols || ncy >= g.rows {
				continue
			}
			for _, j := range g.cells[ncy*g.cols+ncx] {
				other := hits[j]
				dt := absDiffU32(h.ToF, other.ToF)
				if dt > windowTicks {
					continue
				}
				ddx := float64(int32(h.X) - int32(other.X))
				ddy := float64(int32(h.Y) - int32(other.Y))
				if ddx*ddx+ddy*ddy <= epsSq {
					neighbors = append(neighbors, j)
				}
			}
		}
	}
	return neighbors
}

// Cluster implements standard DBSCAN over a time-ordered hit slice (spec §4.6).
func (DensityAlgorithm) Cluster(ctx context.Context, hits []tpx3.Hit, labels []int32, cfg Config, stats *tpx3.Stats) (int, error) {
	resetLabels(labels)
	n := len(hits)
	if n == 0 {
		return 0, nil
	}

	minPoints := cfg.MinPoints
	if minPoints <= 0 {
		minPoints = 2
	}
	epsSq := cfg.Radius * cfg.Radius
	windowTicks := cfg.windowTicks()

	grid := newDBSCANGrid(hits, cfg)
	visited := make([]bool, n)
	noise := make([]bool, n)
	nextClusterID := int32(0)

	for i := 0; i < n; i++ {
		if i%clusterCheckpointInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := grid.regionQuery(hits, i, epsSq, windowTicks)
		if len(neighbors) < minPoints {
			noise[i] = true
			continue
		}

		clusterID := nextClusterID
		nextClusterID++
		labels[i] = clusterID
		expandDensityCluster(hits, i, neighbors, clusterID, grid, epsSq, windowTicks, minPoints, labels, visited, noise)
	}

	return enforceClusterSizeBounds(labels, int(nextClusterID), cfg, stats)
}

func expandDensityCluster(hits []tpx3.Hit, root int, seeds []int, clusterID int32, grid *dbscanGrid, epsSq float64, windowTicks uint32, minPoints int, labels []int32, visited, noise []bool) {
	i := 0
	for i < len(seeds) {
		p := seeds[i]
		i++

		if noise[p] {
			noise[p] = false
			labels[p] = clusterID
		}

		if !visited[p] {
			visited[p] = true
			labels[p] = clusterID

			neighbors := grid.regionQuery(hits, p, epsSq, windowTicks)
			if len(neighbors) >= minPoints {
				seeds = append(seeds, neighbors...)
			}
		} else if labels[p] == tpx3.UnassignedCluster {
			labels[p] = clusterID
		}
	}
}

// enforceClusterSizeBounds applies min/max_cluster_size after the fact,
// since density-based growth does not know a cluster's final size until it
// stops expanding (spec §7, ClusteringOverflow).
func enforceClusterSizeBounds(labels []int32, nClusters int, cfg Config, stats *tpx3.Stats) (int, error) {
	if nClusters == 0 {
		return 0, nil
	}
	counts := make([]int, nClusters)
	for _, l := range labels {
		if l >= 0 {
			counts[l]++
		}
	}

	remap := make([]int32, nClusters)
	next := int32(0)
	for id, count := range counts {
		switch {
		case cfg.MaxClusterSize > 0 && count > cfg.MaxClusterSize:
			remap[id] = tpx3.UnassignedCluster
			if stats != nil {
				stats.ClusteringOverflowCount.Add(1)
			}
		case count < cfg.MinClusterSize:
			remap[id] = tpx3.UnassignedCluster
		default:
			remap[id] = next
			next++
		}
	}

	for i, l := range labels {
		if l >= 0 {
			labels[i] = remap[l]
		}
	}
	return int(next), nil
}
