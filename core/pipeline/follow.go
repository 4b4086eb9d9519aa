package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"brontes/pkg/utils"
)

// TipFollower subscribes to a block-number source that lags chain head by
// BehindTip blocks (default 5) and pushes each newly-available block
// through the same single-block pipeline as the range executor (spec
// §4.10 "Tip follower").
type TipFollower struct {
	Deps       Deps
	Sink       Sink
	Head       HeadSource
	BehindTip  uint64
	PollPeriod time.Duration

	lastEmitted uint64
	started     bool
}

// NewTipFollower wires a fresh metrics registry into deps and returns a
// ready-to-run TipFollower. behindTip defaults to 5 and pollPeriod to 12s
// (Ethereum's block time) when zero.
func NewTipFollower(deps Deps, sink Sink, head HeadSource, behindTip uint64, pollPeriod time.Duration) *TipFollower {
	deps.metrics = newMetrics(prometheus.NewRegistry())
	if behindTip == 0 {
		behindTip = 5
	}
	if pollPeriod == 0 {
		pollPeriod = 12 * time.Second
	}
	return &TipFollower{Deps: deps, Sink: sink, Head: head, BehindTip: behindTip, PollPeriod: pollPeriod}
}

// Run polls Head on PollPeriod and processes every newly-lagged block in
// ascending order until ctx is cancelled.
func (f *TipFollower) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.PollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := f.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (f *TipFollower) tick(ctx context.Context) error {
	head, err := f.Head.HeadBlockNumber(ctx)
	if err != nil {
		return utils.NewStageError(utils.UpstreamIO, 0, "head-fetch", err)
	}
	if head < f.BehindTip {
		return nil
	}
	target := head - f.BehindTip

	if !f.started {
		f.lastEmitted = target
		f.started = true
		return nil
	}
	for bn := f.lastEmitted + 1; bn <= target; bn++ {
		mb, err := ProcessBlock(ctx, f.Deps, bn)
		if err != nil {
			kind, _ := utils.KindOf(err)
			log.WithFields(log.Fields{"block": bn, "kind": kind.String()}).WithError(err).Warn("block failed, skipping")
			f.lastEmitted = bn
			continue
		}
		if err := f.Sink.WriteMevBlock(ctx, mb); err != nil {
			return utils.NewStageError(utils.PipelineFailure, bn, "emit", err)
		}
		f.lastEmitted = bn
	}
	return nil
}
