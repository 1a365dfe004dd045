package extract

import (
	"context"

	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

// DefaultBatchSize mirrors tpx3.DefaultBatchSize for neutron batches (spec §6).
const DefaultBatchSize = tpx3.DefaultBatchSize

// HitLabelBatch is one closed clustering window: a contiguous, tof-sorted
// hit slice together with its labels and cluster count, ready for
// extraction (spec §4.7 "emitted only after its source cluster is closed").
type HitLabelBatch struct {
	Hits      []tpx3.Hit
	Labels    []int32
	NClusters int
}

// BatchSource supplies the next closed clustering window, or ok=false once
// exhausted. A pipeline stage implements this over its clusterer's output.
type BatchSource interface {
	Next(ctx context.Context) (batch HitLabelBatch, ok bool, err error)
}

// NeutronIterator produces batches of neutrons extracted from successive
// HitLabelBatch windows, applying the same batching policy as
// tpx3.HitIterator (spec §6).
type NeutronIterator struct {
	source    BatchSource
	cfg       Config
	batchSize int
	pending   []Neutron
}

// NewNeutronIterator wraps a BatchSource as a batching neutron iterator.
func NewNeutronIterator(source BatchSource, cfg Config, batchSize int) *NeutronIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &NeutronIterator{source: source, cfg: cfg, batchSize: batchSize}
}

// Next fills and returns the next batch of neutrons.
func (it *NeutronIterator) Next(ctx context.Context) (batch []Neutron, ok bool, err error) {
	out := make([]Neutron, 0, it.batchSize)

	for len(out) < it.batchSize {
		if len(it.pending) == 0 {
			window, has, err := it.source.Next(ctx)
			if err != nil {
				return nil, false, err
			}
			if !has {
				break
			}
			it.pending = Extract(window.Hits, window.Labels, window.NClusters, it.cfg)
			if len(it.pending) == 0 {
				continue
			}
		}

		take := it.batchSize - len(out)
		if take > len(it.pending) {
			take = len(it.pending)
		}
		out = append(out, it.pending[:take]...)
		it.pending = it.pending[take:]
	}

	return out, len(out) > 0, nil
}
