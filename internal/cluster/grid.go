package cluster

import (
	"context"

	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

// GridAlgorithm partitions the detector plane into a fixed cols x rows
// grid, clusters within each cell independently by flood-fill, and
// optionally merges clusters that straddle a cell boundary with
// union-find (spec §4.6: "this path is an explicit requirement of the
// grid variant and must not be omitted").
type GridAlgorithm struct{}

func (GridAlgorithm) Cluster(ctx context.Context, hits []tpx3.Hit, labels []int32, cfg Config, stats *tpx3.Stats) (int, error) {
	resetLabels(labels)
	n := len(hits)
	if n == 0 {
		return 0, nil
	}

	cols := cfg.GridCols
	rows := cfg.GridRows
	if cols <= 0 {
		cols = 8
	}
	if rows <= 0 {
		rows = 8
	}
	cellW := (cfg.detectorWidth() + cols - 1) / cols
	cellH := (cfg.detectorHeight() + rows - 1) / rows
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}

	cellIndex := func(x, y uint16) int {
		cx := int(x) / cellW
		if cx >= cols {
			cx = cols - 1
		}
		cy := int(y) / cellH
		if cy >= rows {
			cy = rows - 1
		}
		return cy*cols + cx
	}

	byCell := make(map[int][]int, cols*rows)
	for i, h := range hits {
		c := cellIndex(h.X, h.Y)
		byCell[c] = append(byCell[c], i)
	}

	windowTicks := cfg.windowTicks()
	radius := cfg.Radius

	nextClusterID := int32(0)
	processed := 0
	for _, members := range byCell {
		if err := floodFillCell(ctx, hits, members, labels, radius, windowTicks, &nextClusterID, &processed); err != nil {
			return 0, err
		}
	}

	if cfg.MergeAdjacentCells {
		mergeAdjacentCellClusters(hits, labels, cellIndex, cols, rows, radius, windowTicks, int(nextClusterID))
		nextClusterID = renumberLabels(labels, int(nextClusterID))
	}

	return enforceClusterSizeBounds(labels, int(nextClusterID), cfg, stats)
}

// floodFillCell clusters the hits belonging to a single grid cell using
// flood-fill over a proximity adjacency (spatial radius plus ToF window).
func floodFillCell(ctx context.Context, hits []tpx3.Hit, members []int, labels []int32, radius float64, windowTicks uint32, nextClusterID *int32, processed *int) error {
	visited := make(map[int]bool, len(members))

	for _, start := range members {
		if visited[start] {
			continue
		}

		stack := []int{start}
		visited[start] = true
		clusterID := *nextClusterID
		*nextClusterID++

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			labels[cur] = clusterID

			*processed++
			if *processed%clusterCheckpointInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			h := hits[cur]
			for _, other := range members {
				if visited[other] {
					continue
				}
				o := hits[other]
				if absDiffU32(h.ToF, o.ToF) > windowTicks {
					continue
				}
				if withinSpatialWindow(h.X, h.Y, o.X, o.Y, radius) {
					visited[other] = true
					stack = append(stack, other)
				}
			}
		}
	}
	return nil
}

// mergeAdjacentCellClusters unions per-cell cluster labels that have hits
// within the acceptance window across a cell boundary, so a real neutron
// track split by the partition is not reported as two clusters.
func mergeAdjacentCellClusters(hits []tpx3.Hit, labels []int32, cellIndex func(x, y uint16) int, cols, rows int, radius float64, windowTicks uint32, nClusters int) {
	uf := newUnionFind(nClusters)

	byCellBoundary := map[int][]int{}
	for i, h := range hits {
		c := cellIndex(h.X, h.Y)
		byCellBoundary[c] = append(byCellBoundary[c], i)
	}

	neighborOffsets := [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}
	for cell, members := range byCellBoundary {
		cx := cell % cols
		cy := cell / cols
		for _, off := range neighborOffsets {
			ncx, ncy := cx+off[0], cy+off[1]
			if ncx < 0 || ncx >= cols || ncy < 0 || ncy >= rows {
				continue
			}
			neighborCell := ncy*cols + ncx
			neighbors, ok := byCellBoundary[neighborCell]
			if !ok {
				continue
			}
			for _, i := range members {
				if labels[i] < 0 {
					continue
				}
				for _, j := range neighbors {
					if labels[j] < 0 {
						continue
					}
					if absDiffU32(hits[i].ToF, hits[j].ToF) > windowTicks {
						continue
					}
					if withinSpatialWindow(hits[i].X, hits[i].Y, hits[j].X, hits[j].Y, radius) {
						uf.union(labels[i], labels[j])
					}
				}
			}
		}
	}

	for i, l := range labels {
		if l >= 0 {
			labels[i] = uf.find(l)
		}
	}
}

// renumberLabels compacts a label space with gaps (left by a union-find
// merge) into dense ids starting at 0.
func renumberLabels(labels []int32, maxLabel int) int32 {
	remap := make(map[int32]int32, maxLabel)
	next := int32(0)
	for i, l := range labels {
		if l < 0 {
			continue
		}
		id, ok := remap[l]
		if !ok {
			id = next
			next++
			remap[l] = id
		}
		labels[i] = id
	}
	return next
}
