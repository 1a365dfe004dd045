// Package pipeline wires the scan, decode, merge, cluster, and extract
// stages behind a single Run call, the way the teacher's main.go wires
// fileReader, worker, and Writer around sendEventsToWorkers /
// processWorkerResults (workers.go).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/next-exp/tpx3pipe/internal/cluster"
	"github.com/next-exp/tpx3pipe/internal/config"
	"github.com/next-exp/tpx3pipe/internal/extract"
	"github.com/next-exp/tpx3pipe/internal/logging"
	"github.com/next-exp/tpx3pipe/internal/metrics"
	"github.com/next-exp/tpx3pipe/internal/sink"
	"github.com/next-exp/tpx3pipe/internal/tpx3"
)

// ErrCanceled wraps context cancellation observed at any pipeline
// checkpoint, so callers can distinguish it from a decode/cluster fault.
var ErrCanceled = errors.New("pipeline: canceled")

// Result summarizes one completed run.
type Result struct {
	RunID           string
	Stats           tpx3.Snapshot
	SectionsScanned int
	ClustersFormed  int
	NeutronsEmitted int
	Elapsed         time.Duration
}

// Pipeline runs one configured pass over a single input file.
type Pipeline struct {
	cfg        config.Configuration
	log        logging.Logger
	onChipDone func(chipID uint8, nClusters, nNeutrons int)
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithProgress registers a callback invoked once per chip after its
// clustering and extraction complete, the hook the CLI's -progress flag
// uses in place of an animated progress bar (see DESIGN.md).
func WithProgress(fn func(chipID uint8, nClusters, nNeutrons int)) Option {
	return func(p *Pipeline) { p.onChipDone = fn }
}

// New builds a Pipeline from a loaded Configuration.
func New(cfg config.Configuration, log logging.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logging.Default()
	}
	p := &Pipeline{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes scan -> decode -> merge -> per-chip cluster -> extract -> sink
// over p.cfg.FileIn, writing neutrons to p.cfg.FileOut as they are produced.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	runID := uuid.New().String()
	stats := &tpx3.Stats{}

	data, err := os.ReadFile(p.cfg.FileIn)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: reading %q: %w", p.cfg.FileIn, err)
	}

	sections := tpx3.Scan(data, stats)
	metrics.SectionsScanned.Add(float64(len(sections)))
	p.log.Info(fmt.Sprintf("run %s: discovered %d sections across %d bytes", runID, len(sections), len(data)), "pipeline")

	if discarded := stats.TrailingBytesDiscarded.Load(); discarded > 0 {
		p.log.Error((&tpx3.ErrInvalidInput{Reason: fmt.Sprintf("%d trailing bytes are not a multiple of the packet size; discarded", discarded)}).Error())
	}
	if len(sections) == 0 {
		return Result{}, &tpx3.ErrInvalidInput{Reason: "no header packet found in input"}
	}

	decodeCfg := p.cfg.DecodeConfig()
	if err := preDecodeSections(ctx, data, sections, decodeCfg, stats, p.cfg.Parallelism); err != nil {
		return Result{}, joinCancel(ctx, fmt.Errorf("pipeline: pre-decode pass: %w", err))
	}

	byChip, err := p.drainMerge(ctx, data, sections, decodeCfg, stats)
	if err != nil {
		return Result{}, joinCancel(ctx, fmt.Errorf("pipeline: merge stage: %w", err))
	}

	clusterCfg, err := p.cfg.ClusterConfig()
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}
	algo, err := cluster.Select(clusterCfg.Algorithm)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}
	extractCfg := p.cfg.ExtractConfig()

	out, err := newSink(p.cfg)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: opening sink: %w", err)
	}

	totalClusters, totalNeutrons, err := p.clusterAndExtract(ctx, byChip, algo, clusterCfg, extractCfg, stats, out)
	closeErr := out.Close()
	if err != nil {
		return Result{}, joinCancel(ctx, fmt.Errorf("pipeline: cluster/extract stage: %w", err))
	}
	if closeErr != nil {
		return Result{}, fmt.Errorf("pipeline: closing sink: %w", closeErr)
	}

	result := Result{
		RunID:           runID,
		Stats:           stats.Snapshot(),
		SectionsScanned: len(sections),
		ClustersFormed:  totalClusters,
		NeutronsEmitted: totalNeutrons,
		Elapsed:         time.Since(start),
	}
	p.log.Info(fmt.Sprintf("run %s: %d clusters, %d neutrons in %s", runID, totalClusters, totalNeutrons, result.Elapsed), "pipeline")
	return result, nil
}

// estimatedHitBytes is a conservative per-Hit resident-memory estimate for
// the memory_budget_bytes check: a round-number upper bound on the struct's
// aligned field widths, not an exact unsafe.Sizeof accounting.
const estimatedHitBytes = 24

// drainMerge pulls the full globally-ordered hit stream out of the merger
// and partitions it by chip id, preserving each chip's relative ToF order,
// since every clusterer operates on one chip's hits at a time (spec §4.5
// "clustering never crosses chip boundaries").
//
// Full suspend/resume backpressure (decoder pausing mid-stream until the
// sink drains a batch) would require restructuring the pipeline into a
// batch-at-a-time streaming loop across merge, cluster, and extract; this
// drain instead accumulates the whole merged stream and fails fast with
// tpx3.ErrResourceExhausted once Configuration.MemoryBudgetBytes would be
// exceeded, rather than silently holding an unbounded amount of memory.
func (p *Pipeline) drainMerge(ctx context.Context, data []byte, sections []tpx3.Section, decodeCfg tpx3.DecodeConfig, stats *tpx3.Stats) (map[uint8][]tpx3.Hit, error) {
	merger := tpx3.NewMerger(data, sections, decodeCfg, stats)
	hitIter := tpx3.NewHitIterator(merger, p.cfg.BatchSize)

	byChip := map[uint8][]tpx3.Hit{}
	var resident int64
	for {
		batch, ok, err := hitIter.Next(ctx)
		if err != nil {
			return nil, err
		}
		for _, hit := range batch {
			byChip[hit.ChipID] = append(byChip[hit.ChipID], hit)
		}
		resident += int64(len(batch)) * estimatedHitBytes
		if p.cfg.MemoryBudgetBytes > 0 && resident > p.cfg.MemoryBudgetBytes {
			return nil, &tpx3.ErrResourceExhausted{BudgetBytes: p.cfg.MemoryBudgetBytes, WantBytes: resident}
		}
		if !ok {
			break
		}
	}
	return byChip, nil
}

// chipWindowSource is an extract.BatchSource over exactly one chip's closed
// clustering window: the whole chip is clustered in one pass (spec §4.6),
// so there is only ever one window to hand to extract.NeutronIterator.
type chipWindowSource struct {
	window extract.HitLabelBatch
	done   bool
}

func (s *chipWindowSource) Next(ctx context.Context) (extract.HitLabelBatch, bool, error) {
	if s.done {
		return extract.HitLabelBatch{}, false, nil
	}
	s.done = true
	return s.window, true, nil
}

// clusterAndExtract clusters and extracts each chip's hits in ascending
// chip id order, streaming neutrons to out in Configuration.BatchSize
// chunks.
func (p *Pipeline) clusterAndExtract(ctx context.Context, byChip map[uint8][]tpx3.Hit, algo cluster.Algorithm, clusterCfg cluster.Config, extractCfg extract.Config, stats *tpx3.Stats, out sink.NeutronSink) (totalClusters, totalNeutrons int, err error) {
	chipIDs := maps.Keys(byChip)
	sort.Slice(chipIDs, func(i, j int) bool { return chipIDs[i] < chipIDs[j] })

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = tpx3.DefaultBatchSize
	}

	for _, chipID := range chipIDs {
		if err := ctx.Err(); err != nil {
			return totalClusters, totalNeutrons, err
		}

		hits := byChip[chipID]
		labels := make([]int32, len(hits))
		nClusters, err := algo.Cluster(ctx, hits, labels, clusterCfg, stats)
		if err != nil {
			return totalClusters, totalNeutrons, fmt.Errorf("chip %d: %w", chipID, err)
		}
		metrics.ClustersFormed.WithLabelValues(p.cfg.Algorithm).Add(float64(nClusters))
		totalClusters += nClusters

		window := &chipWindowSource{window: extract.HitLabelBatch{Hits: hits, Labels: labels, NClusters: nClusters}}
		neutronIter := extract.NewNeutronIterator(window, extractCfg, batchSize)

		chipNeutrons := 0
		for {
			batch, ok, err := neutronIter.Next(ctx)
			if err != nil {
				return totalClusters, totalNeutrons, fmt.Errorf("chip %d: extracting neutrons: %w", chipID, err)
			}
			if len(batch) > 0 {
				if err := out.WriteBatch(batch); err != nil {
					return totalClusters, totalNeutrons, fmt.Errorf("chip %d: writing neutron batch: %w", chipID, err)
				}
				chipNeutrons += len(batch)
			}
			if !ok {
				break
			}
		}
		metrics.NeutronsEmitted.Add(float64(chipNeutrons))
		totalNeutrons += chipNeutrons

		if p.onChipDone != nil {
			p.onChipDone(chipID, nClusters, chipNeutrons)
		}
	}
	return totalClusters, totalNeutrons, nil
}

// newSink builds the configured output sink from Configuration.Format.
func newSink(cfg config.Configuration) (sink.NeutronSink, error) {
	switch cfg.Format {
	case "", "ndjson":
		return sink.NewNDJSONSink(cfg.FileOut)
	case "csv":
		return sink.NewCSVSink(cfg.FileOut)
	case "sqlite":
		return sink.NewSQLiteSink(cfg.FileOut)
	default:
		return nil, fmt.Errorf("pipeline: unknown output format %q", cfg.Format)
	}
}

// joinCancel rewrites err to also satisfy errors.Is(err, ErrCanceled) when
// ctx was canceled, without discarding the underlying wrapped error.
func joinCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Join(err, ErrCanceled)
	}
	return err
}
