package cluster

import (
	"context"
	"fmt"

	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

// Algorithm is the common operation signature for all clustering variants
// (spec §9: "tagged variant with a common operation signature rather than
// virtual dispatch inside the hot inner loop"). Implementations require
// hits sorted non-decreasing by ToF and write into the caller-owned labels
// buffer, which must have the same length as hits.
type Algorithm interface {
	Cluster(ctx context.Context, hits []tpx3.Hit, labels []int32, cfg Config, stats *tpx3.Stats) (nClusters int, err error)
}

// Select returns the Algorithm implementation named by cfg.Algorithm.
func Select(kind AlgorithmKind) (Algorithm, error) {
	switch kind {
	case AgeBased:
		return AgeBucketAlgorithm{}, nil
	case Density:
		return DensityAlgorithm{}, nil
	case Graph:
		return GraphAlgorithm{}, nil
	case Grid:
		return GridAlgorithm{}, nil
	default:
		return nil, fmt.Errorf("cluster: unknown algorithm kind %d", kind)
	}
}

func resetLabels(labels []int32) {
	for i := range labels {
		labels[i] = tpx3.UnassignedCluster
	}
}

func withinSpatialWindow(ax, ay, bx, by uint16, radius float64) bool {
	dx := float64(int32(ax) - int32(bx))
	dy := float64(int32(ay) - int32(by))
	return dx*dx+dy*dy <= radius*radius
}

func absDiffU32(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
