package extract

// Neutron is an aggregated centroid event produced from one closed cluster
// (spec §3).
type Neutron struct {
	X, Y   float64
	ToF    uint32
	ToT    uint16
	NHits  uint16
	ChipID uint8
}
