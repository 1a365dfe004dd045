package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"github.com/next-exp/tpx3pipe/internal/metrics"
	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

// decodeOutcome is one worker's result for a single section, mirroring the
// teacher's EventType result value sent back over a results channel
// (workers.go).
type decodeOutcome struct {
	hitCount int
	err      error
}

// preDecodeSections runs an embarrassingly-parallel validation pass over
// every section (spec §5 "section decoding is embarrassingly parallel"),
// populating HitsDecoded ahead of the single-threaded merge.
// The Merger re-decodes each section itself as part of its fused
// decode-and-merge walk; this pass exists to surface decode errors early and
// to drive progress metrics, not to hand decoded hits to the merger.
func preDecodeSections(ctx context.Context, data []byte, sections []tpx3.Section, cfg tpx3.DecodeConfig, stats *tpx3.Stats, parallelism int) error {
	if len(sections) == 0 {
		return nil
	}

	numWorkers := parallelism
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(sections) {
		numWorkers = len(sections)
	}

	jobs := make(chan tpx3.Section, len(sections))
	results := make(chan decodeOutcome, len(sections))

	for w := 0; w < numWorkers; w++ {
		go decodeWorker(ctx, w, data, cfg, stats, jobs, results)
	}
	for _, s := range sections {
		jobs <- s
	}
	close(jobs)

	var firstErr error
	for i := 0; i < len(sections); i++ {
		outcome := <-results
		if outcome.err != nil && firstErr == nil {
			firstErr = outcome.err
		}
		metrics.HitsDecoded.Add(float64(outcome.hitCount))
	}
	return firstErr
}

func decodeWorker(ctx context.Context, id int, data []byte, cfg tpx3.DecodeConfig, stats *tpx3.Stats, jobs <-chan tpx3.Section, results chan<- decodeOutcome) {
	for section := range jobs {
		results <- decodeOneSection(ctx, id, data, section, cfg, stats)
	}
}

// decodeOneSection decodes a single section, recovering from any panic so
// one bad section cannot wedge the collecting loop in preDecodeSections,
// which expects exactly one result per dispatched job.
func decodeOneSection(ctx context.Context, workerID int, data []byte, section tpx3.Section, cfg tpx3.DecodeConfig, stats *tpx3.Stats) (outcome decodeOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = decodeOutcome{err: fmt.Errorf("pipeline: decode worker %d panicked: %v", workerID, r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return decodeOutcome{err: err}
	}

	// The Merger's own decode walk counts discarded hits in stats; passing nil
	// here keeps each discarded hit counted once.
	hits := tpx3.DecodeSection(data, section, cfg, nil)
	return decodeOutcome{hitCount: len(hits)}
}
