package tpx3

import "context"

// DefaultBatchSize is the default HitIterator/NeutronIterator batch size
// (spec §6).
const DefaultBatchSize = 65536

// HitIterator produces batches of time-ordered hits, each a contiguous
// slice of the Merger's output (spec §6). The hits are not labeled here:
// ClusterID is always -1, and clusterers write their labels to a separate
// buffer.
type HitIterator struct {
	merger    *Merger
	batchSize int
}

// NewHitIterator wraps a Merger as a batching iterator.
func NewHitIterator(merger *Merger, batchSize int) *HitIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &HitIterator{merger: merger, batchSize: batchSize}
}

// Next fills and returns the next batch. ok is false once the underlying
// stream is exhausted, with a zero-length batch.
func (it *HitIterator) Next(ctx context.Context) (batch []Hit, ok bool, err error) {
	batch = make([]Hit, 0, it.batchSize)
	for len(batch) < it.batchSize {
		hit, has, err := it.merger.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !has {
			break
		}
		batch = append(batch, hit)
	}
	return batch, len(batch) > 0, nil
}
