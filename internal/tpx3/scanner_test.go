package tpx3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerWord(chipID uint8) uint64 {
	return uint64(HeaderMagic) | uint64(chipID)<<32
}

func TestScan_SingleChipOneSection(t *testing.T) {
	var data []byte
	data = append(data, packetBytes(headerWord(5))...)
	data = append(data, packetBytes(triggerWord(10))...)
	data = append(data, packetBytes(hitWord(1, 1, 1, 1))...)

	sections := Scan(data, &Stats{})
	require.Len(t, sections, 1)
	assert.Equal(t, uint8(5), sections[0].ChipID)
	assert.Nil(t, sections[0].InitialTrigger)
	require.NotNil(t, sections[0].FinalTrigger)
	assert.Equal(t, uint32(10), *sections[0].FinalTrigger)
	assert.Equal(t, 2, sections[0].PacketCount())
}

func TestScan_SecondHeaderClosesFirstSection(t *testing.T) {
	var data []byte
	data = append(data, packetBytes(headerWord(0))...)
	data = append(data, packetBytes(triggerWord(1))...)
	data = append(data, packetBytes(headerWord(1))...)
	data = append(data, packetBytes(triggerWord(2))...)

	sections := Scan(data, &Stats{})
	require.Len(t, sections, 2)
	assert.Equal(t, uint8(0), sections[0].ChipID)
	assert.Equal(t, uint8(1), sections[1].ChipID)
}

func TestScan_TriggerStateInheritedAcrossSectionsOfSameChip(t *testing.T) {
	var data []byte
	data = append(data, packetBytes(headerWord(0))...)
	data = append(data, packetBytes(triggerWord(42))...)
	data = append(data, packetBytes(headerWord(1))...) // unrelated chip in between
	data = append(data, packetBytes(triggerWord(7))...)
	data = append(data, packetBytes(headerWord(0))...) // chip 0 resumes
	data = append(data, packetBytes(hitWord(1, 1, 1, 1))...)

	sections := Scan(data, &Stats{})
	require.Len(t, sections, 3)
	chip0Sections := 0
	var chip0Second *Section
	for i := range sections {
		if sections[i].ChipID == 0 {
			chip0Sections++
			if chip0Sections == 2 {
				chip0Second = &sections[i]
			}
		}
	}
	require.NotNil(t, chip0Second)
	require.NotNil(t, chip0Second.InitialTrigger)
	assert.Equal(t, uint32(42), *chip0Second.InitialTrigger)
}

func TestScan_TrailingBytesNotAMultipleOfPacketSizeAreDiscarded(t *testing.T) {
	data := append(packetBytes(headerWord(0)), byte(0x01), byte(0x02), byte(0x03))
	stats := &Stats{}
	Scan(data, stats)
	assert.EqualValues(t, 3, stats.TrailingBytesDiscarded.Load())
}

func TestScan_EmptyInputYieldsNoSections(t *testing.T) {
	sections := Scan(nil, &Stats{})
	assert.Empty(t, sections)
}

func TestScan_NoHeaderPacketYieldsNoSections(t *testing.T) {
	data := packetBytes(triggerWord(1))
	sections := Scan(data, &Stats{})
	assert.Empty(t, sections)
}

func TestScan_EmptySectionIsDropped(t *testing.T) {
	// Two adjacent headers with nothing between them: the first section is
	// zero-length and must not appear in the output.
	var data []byte
	data = append(data, packetBytes(headerWord(0))...)
	data = append(data, packetBytes(headerWord(1))...)
	data = append(data, packetBytes(triggerWord(1))...)

	sections := Scan(data, &Stats{})
	require.Len(t, sections, 1)
	assert.Equal(t, uint8(1), sections[0].ChipID)
}
