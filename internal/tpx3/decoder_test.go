package tpx3

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packetBytes(p uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, p)
	return b
}

func triggerWord(timestamp uint32) uint64 {
	return uint64(triggerTypeID)<<56 | (uint64(timestamp)&0x3FFFFFFF)<<12
}

func hitWord(x, y uint16, toa, tot uint16) uint64 {
	addr := uint64(EncodeLocalAddress(x, y))
	return uint64(hitTypeID)<<60 | addr<<44 | (uint64(toa)&0x3FFF)<<30 | (uint64(tot)&0x3FF)<<20
}

// hitWordWithSpidr additionally sets the 16-bit SPIDR counter (bits 0..15),
// needed to construct coarse timestamps beyond the 14-bit ToA field alone.
func hitWordWithSpidr(x, y uint16, spidr, toa, tot uint16) uint64 {
	return hitWord(x, y, toa, tot) | uint64(spidr)
}

func defaultDecodeConfig() DecodeConfig {
	cfg := DecodeConfig{TriggerPeriodTicks: 16384}
	for i := range cfg.ChipTransforms {
		cfg.ChipTransforms[i] = IdentityTransform()
	}
	return cfg
}

func TestDecodeSection_ComputesToFRelativeToInheritedTrigger(t *testing.T) {
	var data []byte
	data = append(data, packetBytes(hitWord(10, 10, 150, 5))...)

	ts := uint32(100)
	section := Section{StartOffset: 0, EndOffset: len(data), ChipID: 3, InitialTrigger: &ts}

	hits := DecodeSection(data, section, defaultDecodeConfig(), &Stats{})
	require.Len(t, hits, 1)
	assert.Equal(t, uint32(50), hits[0].ToF)
	assert.Equal(t, uint16(10), hits[0].X)
	assert.Equal(t, uint16(10), hits[0].Y)
	assert.Equal(t, uint16(5), hits[0].ToT)
	assert.Equal(t, uint8(3), hits[0].ChipID)
}

func TestDecodeSection_TriggerPacketUpdatesCurrentTrigger(t *testing.T) {
	var data []byte
	data = append(data, packetBytes(triggerWord(200))...)
	data = append(data, packetBytes(hitWord(1, 1, 210, 1))...)

	section := Section{StartOffset: 0, EndOffset: len(data), ChipID: 0}

	hits := DecodeSection(data, section, defaultDecodeConfig(), &Stats{})
	require.Len(t, hits, 1)
	assert.Equal(t, uint32(10), hits[0].ToF)
}

func TestDecodeSection_HitsBeforeAnyTriggerAreDiscarded(t *testing.T) {
	var data []byte
	data = append(data, packetBytes(hitWord(1, 1, 10, 1))...)

	section := Section{StartOffset: 0, EndOffset: len(data), ChipID: 0}
	stats := &Stats{}

	hits := DecodeSection(data, section, defaultDecodeConfig(), stats)
	assert.Empty(t, hits)
	assert.EqualValues(t, 1, stats.HitsWithoutTrigger.Load())
}

func TestDecodeSection_AppliesPerChipAffineTransform(t *testing.T) {
	var data []byte
	data = append(data, packetBytes(hitWord(10, 10, 50, 1))...)

	ts := uint32(0)
	section := Section{StartOffset: 0, EndOffset: len(data), ChipID: 2, InitialTrigger: &ts}

	cfg := defaultDecodeConfig()
	cfg.ChipTransforms[2] = AffineTransform{A00: 1, A11: 1, Tx: 256}

	hits := DecodeSection(data, section, cfg, &Stats{})
	require.Len(t, hits, 1)
	assert.Equal(t, uint16(266), hits[0].X)
}

func TestDecodeSection_ToFWrapsWithinTriggerPeriod(t *testing.T) {
	var data []byte
	// tsRaw - currentTrigger exceeds one trigger period; the excess must be
	// folded back by subtracting the period once.
	data = append(data, packetBytes(hitWordWithSpidr(1, 1, 1, 101, 1))...)

	ts := uint32(0)
	section := Section{StartOffset: 0, EndOffset: len(data), ChipID: 0, InitialTrigger: &ts}

	cfg := defaultDecodeConfig()
	hits := DecodeSection(data, section, cfg, &Stats{})
	require.Len(t, hits, 1)
	assert.Equal(t, uint32(101), hits[0].ToF)
}
