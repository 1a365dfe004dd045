package tpx3

import "math"

// AffineTransform maps chip-local pixel coordinates to global detector
// coordinates: (x, y) -> A*(x, y) + t (spec §4.2, configuration surface
// "chip_transforms").
type AffineTransform struct {
	A00, A01, A10, A11 float64
	Tx, Ty             float64
}

// IdentityTransform returns the no-op transform used for single-chip or
// unconfigured setups.
func IdentityTransform() AffineTransform {
	return AffineTransform{A00: 1, A11: 1}
}

// Apply maps local coordinates to global integer coordinates, rounding to
// the nearest pixel.
func (t AffineTransform) Apply(xLocal, yLocal uint16) (uint16, uint16) {
	fx := t.A00*float64(xLocal) + t.A01*float64(yLocal) + t.Tx
	fy := t.A10*float64(xLocal) + t.A11*float64(yLocal) + t.Ty
	return uint16(math.Round(fx)), uint16(math.Round(fy))
}
