package pipeline

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/next-exp/tpx3pipe/internal/config"
	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

func packetBytes(p uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, p)
	return b
}

func headerPacket(chipID uint8) uint64 {
	return uint64(tpx3.HeaderMagic) | uint64(chipID)<<32
}

func triggerPacket(timestamp uint32) uint64 {
	return uint64(0x6F)<<56 | (uint64(timestamp)&0x3FFFFFFF)<<12
}

func hitPacket(x, y uint16, toa uint16, tot uint16) uint64 {
	addr := uint64(tpx3.EncodeLocalAddress(x, y))
	return uint64(0xB)<<60 | addr<<44 | (uint64(toa)&0x3FFF)<<30 | (uint64(tot)&0x3FF)<<20
}

// syntheticStream builds one chip's worth of header + trigger + hit packets
// forming a single tight pulse with two adjacent hits, close enough in
// space and time to merge into one cluster under the default configuration.
func syntheticStream(chipID uint8) []byte {
	var out []byte
	out = append(out, packetBytes(headerPacket(chipID))...)
	out = append(out, packetBytes(triggerPacket(100))...)
	out = append(out, packetBytes(hitPacket(10, 10, 110, 5))...)
	out = append(out, packetBytes(hitPacket(11, 10, 111, 6))...)
	return out
}

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestPipeline_RunProducesOneNeutronFromTwoAdjacentHits(t *testing.T) {
	dir := t.TempDir()
	in := writeTempFile(t, dir, "run.tpx3", syntheticStream(3))
	out := filepath.Join(dir, "neutrons.csv")

	cfg := config.Default()
	cfg.FileIn = in
	cfg.FileOut = out
	cfg.Format = "csv"

	p := New(cfg, nil)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.SectionsScanned)
	assert.Equal(t, 1, result.ClustersFormed)
	assert.Equal(t, 1, result.NeutronsEmitted)
	assert.Zero(t, result.Stats.HitsWithoutTrigger)
	assert.NotEmpty(t, result.RunID)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	fields := strings.Split(lines[1], ",")
	require.Len(t, fields, 6)
	assert.Equal(t, "2", fields[4], "n_hits")
	assert.Equal(t, "3", fields[5], "chip_id")
}

func TestPipeline_RunRejectsUnknownAlgorithm(t *testing.T) {
	dir := t.TempDir()
	in := writeTempFile(t, dir, "run.tpx3", syntheticStream(0))
	out := filepath.Join(dir, "neutrons.ndjson")

	cfg := config.Default()
	cfg.FileIn = in
	cfg.FileOut = out
	cfg.Algorithm = "not-a-real-algorithm"

	p := New(cfg, nil)
	_, err := p.Run(context.Background())
	require.Error(t, err)
}

func TestPipeline_RunSplitsHitsPerChip(t *testing.T) {
	dir := t.TempDir()
	stream := append(syntheticStream(0), syntheticStream(1)...)
	in := writeTempFile(t, dir, "run.tpx3", stream)
	out := filepath.Join(dir, "neutrons.ndjson")

	cfg := config.Default()
	cfg.FileIn = in
	cfg.FileOut = out

	p := New(cfg, nil)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.SectionsScanned)
	assert.Equal(t, 2, result.ClustersFormed)
	assert.Equal(t, 2, result.NeutronsEmitted)
}

func TestPipeline_RunRejectsInputWithNoHeaderPacket(t *testing.T) {
	dir := t.TempDir()
	in := writeTempFile(t, dir, "run.tpx3", packetBytes(triggerPacket(100)))
	out := filepath.Join(dir, "neutrons.ndjson")

	cfg := config.Default()
	cfg.FileIn = in
	cfg.FileOut = out

	p := New(cfg, nil)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	var invalidInput *tpx3.ErrInvalidInput
	assert.ErrorAs(t, err, &invalidInput)
}

func TestPipeline_RunRejectsOverMemoryBudget(t *testing.T) {
	dir := t.TempDir()
	in := writeTempFile(t, dir, "run.tpx3", syntheticStream(0))
	out := filepath.Join(dir, "neutrons.ndjson")

	cfg := config.Default()
	cfg.FileIn = in
	cfg.FileOut = out
	cfg.MemoryBudgetBytes = 1

	p := New(cfg, nil)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	var exhausted *tpx3.ErrResourceExhausted
	assert.ErrorAs(t, err, &exhausted)
}

func TestPipeline_RunHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	in := writeTempFile(t, dir, "run.tpx3", syntheticStream(0))
	out := filepath.Join(dir, "neutrons.ndjson")

	cfg := config.Default()
	cfg.FileIn = in
	cfg.FileOut = out

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(cfg, nil)
	_, err := p.Run(ctx)
	require.Error(t, err)
}
