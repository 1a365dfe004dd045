package tpx3

import "sync/atomic"

// Stats is the per-run statistics record accumulated across scanning,
// decoding, and merging. It is returned alongside results rather than
// stashed in package state (spec §9 "Global state").
type Stats struct {
	TrailingBytesDiscarded  atomic.Int64
	HitsWithoutTrigger      atomic.Int64
	TimeOrderingAnomalies   atomic.Int64
	ClusteringOverflowCount atomic.Int64
}

// Snapshot is a point-in-time, non-atomic copy of Stats suitable for
// logging or serialization.
type Snapshot struct {
	TrailingBytesDiscarded  int64
	HitsWithoutTrigger      int64
	TimeOrderingAnomalies   int64
	ClusteringOverflowCount int64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		TrailingBytesDiscarded:  s.TrailingBytesDiscarded.Load(),
		HitsWithoutTrigger:      s.HitsWithoutTrigger.Load(),
		TimeOrderingAnomalies:   s.TimeOrderingAnomalies.Load(),
		ClusteringOverflowCount: s.ClusteringOverflowCount.Load(),
	}
}
