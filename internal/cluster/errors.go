package cluster

import "fmt"

// ErrOverflow describes a cluster that exceeds max_cluster_size and is
// dropped (spec §7, ClusteringOverflow). The clusterers do not construct or
// return it; each such drop only increments Stats.ClusteringOverflowCount.
type ErrOverflow struct {
	ClusterSize    int
	MaxClusterSize int
}

func (e *ErrOverflow) Error() string {
	return fmt.Sprintf("cluster size %d exceeds max_cluster_size %d: dropped", e.ClusterSize, e.MaxClusterSize)
}
