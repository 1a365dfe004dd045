package tpx3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityTransform_IsNoOp(t *testing.T) {
	tr := IdentityTransform()
	x, y := tr.Apply(37, 42)
	assert.Equal(t, uint16(37), x)
	assert.Equal(t, uint16(42), y)
}

func TestAffineTransform_AppliesTranslation(t *testing.T) {
	tr := AffineTransform{A00: 1, A11: 1, Tx: 256, Ty: 0}
	x, y := tr.Apply(10, 10)
	assert.Equal(t, uint16(266), x)
	assert.Equal(t, uint16(10), y)
}

func TestAffineTransform_RoundsToNearestPixel(t *testing.T) {
	tr := AffineTransform{A00: 0.5, A11: 0.5}
	x, y := tr.Apply(5, 5)
	assert.Equal(t, uint16(3), x) // round(2.5) == 3 (round-half-away-from-zero)
	assert.Equal(t, uint16(3), y)
}

func TestAffineTransform_AppliesRotation(t *testing.T) {
	// 90-degree rotation: (x, y) -> (-y, x), followed by a translation to
	// keep coordinates non-negative.
	tr := AffineTransform{A00: 0, A01: -1, A10: 1, A11: 0, Tx: 256, Ty: 0}
	x, y := tr.Apply(10, 20)
	assert.Equal(t, uint16(236), x)
	assert.Equal(t, uint16(10), y)
}
