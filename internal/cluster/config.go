// Package cluster implements the four clustering algorithms over
// time-ordered hit streams: age-based bucket (reference), density/DBSCAN,
// connected-components/union-find, and grid.
package cluster

// AlgorithmKind selects which clustering algorithm a Config drives (spec
// §4.6, §9 "tagged variant with a common operation signature").
type AlgorithmKind int

const (
	AgeBased AlgorithmKind = iota
	Density
	Graph
	Grid
)

// Config is the shared parameter set for all four clustering algorithms
// (spec §6 configuration surface).
type Config struct {
	Algorithm AlgorithmKind

	Radius         float64 // spatial acceptance, pixels
	WindowNS       float64 // temporal acceptance, nanoseconds
	MinClusterSize int     // drop clusters with fewer hits
	MaxClusterSize int     // 0 = unlimited; exceeding this drops the cluster

	ScanInterval int // age-based: aging-scan cadence in hits

	MinPoints int // density: core-point neighbor threshold

	GridCols, GridRows int  // grid: cell partition of the detector
	MergeAdjacentCells bool // grid: union-find merge across cell boundaries

	DetectorWidth, DetectorHeight int // default 512x512
}

// DefaultConfig returns the spec's default parameter values.
func DefaultConfig() Config {
	return Config{
		Algorithm:      AgeBased,
		Radius:         5.0,
		WindowNS:       75.0,
		MinClusterSize: 1,
		ScanInterval:   100,
		MinPoints:      2,
		GridCols:       8,
		GridRows:       8,
		DetectorWidth:  512,
		DetectorHeight: 512,
	}
}

// windowTicks converts the configured nanosecond window into 25 ns ticks,
// rounding up (spec §4.5: window_ticks = ceil(window_ns / 25)).
func (c Config) windowTicks() uint32 {
	ticks := c.WindowNS / 25.0
	whole := uint32(ticks)
	if float64(whole) < ticks {
		whole++
	}
	return whole
}

func (c Config) detectorWidth() int {
	if c.DetectorWidth > 0 {
		return c.DetectorWidth
	}
	return 512
}

func (c Config) detectorHeight() int {
	if c.DetectorHeight > 0 {
		return c.DetectorHeight
	}
	return 512
}
