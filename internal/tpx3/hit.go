package tpx3

// Hit is a decoded pixel event, corrected for rollover and expressed in
// global detector coordinates. ClusterID is -1 until a clusterer assigns it.
type Hit struct {
	ToF       uint32
	X         uint16
	Y         uint16
	Timestamp uint32
	ToT       uint16
	ChipID    uint8
	ClusterID int32
}

// UnassignedCluster is the sentinel ClusterID value for hits not yet
// claimed by any cluster.
const UnassignedCluster int32 = -1

// NewHit builds a Hit with ClusterID unset.
func NewHit(tof uint32, x, y uint16, timestamp uint32, tot uint16, chipID uint8) Hit {
	return Hit{
		ToF:       tof,
		X:         x,
		Y:         y,
		Timestamp: timestamp,
		ToT:       tot,
		ChipID:    chipID,
		ClusterID: UnassignedCluster,
	}
}
