package pipeline

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"brontes/pkg/utils"
)

// RangeExecutor partitions [StartBlock, EndBlock) into single-block work
// units and drives them through ProcessBlock with a bounded worker pool
// (spec §4.10 "Range executor"). Output is emitted to Sink in strictly
// ascending block-number order via a reordering buffer.
type RangeExecutor struct {
	Deps       Deps
	Sink       Sink
	StartBlock uint64
	EndBlock   uint64
	MaxTasks   int
}

// NewRangeExecutor wires a fresh metrics registry into deps and returns a
// ready-to-run RangeExecutor. Each executor gets its own registry so that
// running more than one in a process (tests, or range followed by follow)
// never hits a duplicate-collector registration panic.
func NewRangeExecutor(deps Deps, sink Sink, startBlock, endBlock uint64, maxTasks int) *RangeExecutor {
	deps.metrics = newMetrics(prometheus.NewRegistry())
	if maxTasks <= 0 {
		maxTasks = 1
	}
	return &RangeExecutor{Deps: deps, Sink: sink, StartBlock: startBlock, EndBlock: endBlock, MaxTasks: maxTasks}
}

// Run processes the full [StartBlock, EndBlock) range and returns once
// every unit has been processed and emitted (or ctx is cancelled). A
// per-block failure is logged and that block is skipped; Run itself only
// returns an error for a pipeline-level failure (spec §7
// "Pipeline-level failure... propagated to the executor which drains and
// exits").
func (e *RangeExecutor) Run(ctx context.Context) error {
	buf := newReorderBuffer(e.StartBlock, 2*e.MaxTasks)
	sem := semaphore.NewWeighted(int64(e.MaxTasks))

	producer, pctx := errgroup.WithContext(ctx)
	producer.Go(func() error {
		for bn := e.StartBlock; bn < e.EndBlock; bn++ {
			if err := sem.Acquire(pctx, 1); err != nil {
				return err
			}
			bn := bn
			producer.Go(func() error {
				defer sem.Release(1)
				mb, err := ProcessBlock(pctx, e.Deps, bn)
				if err != nil {
					kind, _ := utils.KindOf(err)
					log.WithFields(log.Fields{"block": bn, "kind": kind.String()}).WithError(err).Warn("block failed, skipping")
					if e.Deps.metrics != nil {
						e.Deps.metrics.blockFailures.WithLabelValues("process", kind.String()).Inc()
					}
					buf.Put(bn, Result{BlockNumber: bn, Err: err})
					return nil
				}
				buf.Put(bn, Result{BlockNumber: bn, Block: mb})
				return nil
			})
		}
		return nil
	})

	consumer, cctx := errgroup.WithContext(ctx)
	consumer.Go(func() error {
		for {
			if e.Deps.metrics != nil {
				e.Deps.metrics.reorderDepth.Set(float64(buf.Depth()))
			}
			r, ok := buf.Take()
			if !ok {
				return nil
			}
			if r.Err != nil {
				continue
			}
			if err := e.Sink.WriteMevBlock(cctx, r.Block); err != nil {
				return utils.NewStageError(utils.PipelineFailure, r.BlockNumber, "emit", err)
			}
		}
	})

	perr := producer.Wait()
	buf.Close()
	if perr != nil {
		_ = consumer.Wait()
		return perr
	}
	return consumer.Wait()
}
