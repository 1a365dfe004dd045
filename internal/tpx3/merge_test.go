package tpx3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildStream(chipID uint8, triggerTimestamps []uint32, hitsPerTrigger [][]uint64) []byte {
	var data []byte
	data = append(data, packetBytes(headerWord(chipID))...)
	for i, ts := range triggerTimestamps {
		data = append(data, packetBytes(triggerWord(ts))...)
		for _, h := range hitsPerTrigger[i] {
			data = append(data, packetBytes(h)...)
		}
	}
	return data
}

func TestMerger_SingleChipOrdersHitsByToFWithinPulse(t *testing.T) {
	// Two hits under the same trigger, written out of ToA order; the
	// merger must yield them sorted by ToF.
	data := buildStream(0, []uint32{100}, [][]uint64{{
		hitWord(5, 5, 150, 1), // tof = 50
		hitWord(1, 1, 110, 1), // tof = 10
	}})

	sections := Scan(data, &Stats{})
	require.Len(t, sections, 1)

	merger := NewMerger(data, sections, defaultDecodeConfig(), &Stats{})
	var got []Hit
	for {
		hit, ok, err := merger.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, hit)
	}

	require.Len(t, got, 2)
	assert.Equal(t, uint32(10), got[0].ToF)
	assert.Equal(t, uint32(50), got[1].ToF)
}

func TestMerger_InterleavesTwoChipsByEpochTriggerOrder(t *testing.T) {
	// Chip 0's single pulse starts later (trigger 200) than chip 1's
	// (trigger 100); the merged stream must surface chip 1's hits first.
	dataA := buildStream(0, []uint32{200}, [][]uint64{{hitWord(1, 1, 10, 1)}})
	dataB := buildStream(1, []uint32{100}, [][]uint64{{hitWord(2, 2, 20, 1)}})

	data := append(dataA, dataB...)
	sections := Scan(data, &Stats{})
	require.Len(t, sections, 2)

	merger := NewMerger(data, sections, defaultDecodeConfig(), &Stats{})
	var got []Hit
	for {
		hit, ok, err := merger.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, hit)
	}

	require.Len(t, got, 2)
	assert.Equal(t, uint8(1), got[0].ChipID, "chip 1's earlier trigger must merge first")
	assert.Equal(t, uint8(0), got[1].ChipID)
}

func TestMerger_MergeOrderIsDeterministicAcrossRuns(t *testing.T) {
	dataA := buildStream(0, []uint32{50, 150}, [][]uint64{
		{hitWord(1, 1, 10, 1)},
		{hitWord(1, 1, 10, 1)},
	})
	dataB := buildStream(1, []uint32{100}, [][]uint64{{hitWord(2, 2, 20, 1)}})
	data := append(dataA, dataB...)

	sections := Scan(data, &Stats{})

	collect := func() []uint8 {
		merger := NewMerger(data, sections, defaultDecodeConfig(), &Stats{})
		var chips []uint8
		for {
			hit, ok, err := merger.Next(context.Background())
			require.NoError(t, err)
			if !ok {
				break
			}
			chips = append(chips, hit.ChipID)
		}
		return chips
	}

	first := collect()
	second := collect()
	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, []uint8{0, 1, 0}, first)
}

func TestMerger_SynchronousCrossChipTieBreaksByChipIDThenDecodeOrder(t *testing.T) {
	// Two chips share the same trigger timestamp and each chip's hit lands
	// on the same ToF: a genuine cross-chip tie (spec scenario E). The
	// higher-numbered chip is written first in the byte stream, so a naive
	// append-then-sort-by-ToF-only merge would leave it first; the merge
	// must instead resolve the tie by ascending chip id.
	dataHigh := buildStream(5, []uint32{100}, [][]uint64{{hitWord(1, 1, 110, 1)}}) // tof = 10
	dataLow := buildStream(2, []uint32{100}, [][]uint64{{hitWord(2, 2, 110, 1)}})  // tof = 10
	data := append(dataHigh, dataLow...)

	sections := Scan(data, &Stats{})
	require.Len(t, sections, 2)

	merger := NewMerger(data, sections, defaultDecodeConfig(), &Stats{})
	var got []Hit
	for {
		hit, ok, err := merger.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, hit)
	}

	require.Len(t, got, 2)
	assert.Equal(t, uint32(10), got[0].ToF)
	assert.Equal(t, uint32(10), got[1].ToF)
	assert.Equal(t, uint8(2), got[0].ChipID, "tied ToF must resolve to the lower chip id first")
	assert.Equal(t, uint8(5), got[1].ChipID)
}

func TestMerger_NextReturnsErrorOnCanceledContext(t *testing.T) {
	data := buildStream(0, []uint32{1}, [][]uint64{{hitWord(1, 1, 1, 1)}})
	sections := Scan(data, &Stats{})

	merger := NewMerger(data, sections, defaultDecodeConfig(), &Stats{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := merger.Next(ctx)
	assert.Error(t, err)
}

func TestMerger_EmptySectionsYieldsNothing(t *testing.T) {
	merger := NewMerger(nil, nil, defaultDecodeConfig(), &Stats{})
	_, ok, err := merger.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
