package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"brontes/core/actions"
	"brontes/core/classifier"
	"brontes/core/inspectors"
	"brontes/core/mev"
	"brontes/core/pipeline"
	"brontes/core/store"
	"brontes/pkg/config"
)

func main() {
	root := &cobra.Command{Use: "brontes"}
	root.AddCommand(rangeCmd())
	root.AddCommand(followCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func bindPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-tasks", 8, "bounded worker pool size")
	cmd.Flags().Int("min-batch-size", 1, "minimum block batch size per unit")
	cmd.Flags().String("quote-asset", "USDC", "quote asset for USD pricing")
	cmd.Flags().StringSlice("enabled-inspectors", []string{"sandwich", "jit", "atomic-arb", "cex-dex", "liquidation"}, "inspectors to run")
	cmd.Flags().String("dex-pricing", string(config.DexPricingUseDB), "dex_pricing mode: use_db|force_compute|disabled")
	cmd.Flags().Float64("tw-before", 2, "time window before, seconds")
	cmd.Flags().Float64("tw-after", 2, "time window after, seconds")
	cmd.Flags().StringSlice("cex-exchanges", []string{"binance", "coinbase", "kraken"}, "CEX exchanges to source quotes/trades from")
	cmd.Flags().String("db-path", "brontes-data", "embedded KV store path")
	cmd.Flags().String("rpc-url", "", "JSON-RPC endpoint the tracer/head-source dial against")
}

func rangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range [start] [end]",
		Short: "process a closed-open block range [start, end)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			var start, end uint64
			if _, err := fmt.Sscanf(args[0], "%d", &start); err != nil {
				return fmt.Errorf("invalid start block: %w", err)
			}
			if _, err := fmt.Sscanf(args[1], "%d", &end); err != nil {
				return fmt.Errorf("invalid end block: %w", err)
			}
			cfg.Pipeline.StartBlock, cfg.Pipeline.EndBlock = start, end
			applyFlags(cmd, &cfg)

			deps, closeFn, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			exec := pipeline.NewRangeExecutor(deps, &logSink{}, cfg.Pipeline.StartBlock, cfg.Pipeline.EndBlock, cfg.Pipeline.MaxTasks)
			return exec.Run(signalContext())
		},
	}
	bindPipelineFlags(cmd)
	return cmd
}

func followCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "follow chain tip, lagging by behind-tip blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			behindTip, _ := cmd.Flags().GetUint64("behind-tip")
			cfg.Pipeline.BehindTip = behindTip
			applyFlags(cmd, &cfg)

			deps, closeFn, err := buildDeps(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			rpcURL, _ := cmd.Flags().GetString("rpc-url")
			if rpcURL == "" {
				return fmt.Errorf("follow requires --rpc-url for the chain-head source")
			}
			client, err := ethclient.DialContext(context.Background(), rpcURL)
			if err != nil {
				return fmt.Errorf("dial rpc: %w", err)
			}
			defer client.Close()

			follower := pipeline.NewTipFollower(deps, &logSink{}, ethHeadSource{client}, cfg.Pipeline.BehindTip, 0)
			return follower.Run(signalContext())
		},
	}
	cmd.Flags().Uint64("behind-tip", 5, "lag behind chain head, in blocks")
	bindPipelineFlags(cmd)
	return cmd
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	cfg.Pipeline.MaxTasks, _ = cmd.Flags().GetInt("max-tasks")
	cfg.Pipeline.MinBatchSize, _ = cmd.Flags().GetInt("min-batch-size")
	cfg.Pipeline.QuoteAsset, _ = cmd.Flags().GetString("quote-asset")
	cfg.Pipeline.EnabledInspectors, _ = cmd.Flags().GetStringSlice("enabled-inspectors")
	dexPricing, _ := cmd.Flags().GetString("dex-pricing")
	cfg.Pipeline.DexPricing = config.DexPricingMode(dexPricing)
	cfg.Pipeline.TWBeforeSeconds, _ = cmd.Flags().GetFloat64("tw-before")
	cfg.Pipeline.TWAfterSeconds, _ = cmd.Flags().GetFloat64("tw-after")
	cfg.Pipeline.CexExchanges, _ = cmd.Flags().GetStringSlice("cex-exchanges")
	cfg.Storage.DBPath, _ = cmd.Flags().GetString("db-path")

	if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
}

// buildDeps wires the static classifier registry, the local/warehouse store
// pair, and the enabled inspector set into a pipeline.Deps. The Tracer
// collaborator is left as a stub: producing verified execution traces from
// a node is out of scope here (spec §1 Non-goals) — swap stubTracer for a
// real implementation before running against live data.
func buildDeps(cfg config.Config) (pipeline.Deps, func(), error) {
	local, err := store.OpenLocalKV(cfg.Storage.DBPath)
	if err != nil {
		return pipeline.Deps{}, nil, fmt.Errorf("open local kv: %w", err)
	}
	warehouse := store.NewWarehouse(local)

	registry := classifier.NewRegistry()
	classifier.RegisterAll(registry)

	pc := inspectors.PriceContext{
		QuoteAsset: cfg.Pipeline.QuoteAsset,
		TokenSymbol: func(addr actions.Address) (string, bool) {
			info, ok := warehouse.TokenInfo(addr)
			if !ok || info.Symbol == "" {
				return "", false
			}
			return info.Symbol, true
		},
	}

	enabled := enabledSet(cfg.Pipeline.EnabledInspectors)
	var insList []inspectors.Inspector
	if enabled["sandwich"] {
		insList = append(insList, &inspectors.SandwichInspector{Prices: pc, Store: warehouse})
	}
	if enabled["jit"] {
		insList = append(insList, &inspectors.JitInspector{Prices: pc, Store: warehouse})
	}
	if enabled["atomic-arb"] {
		insList = append(insList, &inspectors.AtomicArbInspector{Prices: pc, Store: warehouse, Stablecoins: defaultStablecoins()})
	}
	if enabled["cex-dex"] {
		insList = append(insList, &inspectors.CexDexInspector{
			Prices:      pc,
			Store:       warehouse,
			Stablecoins: defaultStablecoins(),
			PreDecayMs:  cfg.Pipeline.TWBeforeSeconds * 1000,
			PostDecayMs: cfg.Pipeline.TWAfterSeconds * 1000,
		})
	}
	if enabled["liquidation"] {
		insList = append(insList, &inspectors.LiquidationInspector{Prices: pc})
	}

	deps := pipeline.Deps{
		Tracer:            stubTracer{},
		Store:             warehouse,
		TokenDB:           local,
		Registry:          registry,
		Registrar:         local,
		FactorySignatures: defaultFactorySignatures(),
		MergeRules:        classifier.DefaultMergeRules,
		Inspectors:        insList,
		Builder:           pipeline.ZeroBuilderProposerSource{},
	}

	closeFn := func() { local.Close() }
	return deps, closeFn, nil
}

func enabledSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// defaultFactorySignatures lists the canonical mainnet factory contracts for
// the protocols RegisterAll wires in, so the discovery pass (spec §4.1) has
// something to watch for by default. Additional factories are added the
// same way: one FactorySignature per deployed factory/protocol pair.
func defaultFactorySignatures() []classifier.FactorySignature {
	return []classifier.FactorySignature{
		{Factory: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"), Protocol: classifier.ProtocolUniswapV2},
		{Factory: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"), Protocol: classifier.ProtocolUniswapV3},
		{Factory: common.HexToAddress("0xB9fC157394Af804a3578134A6585C0dc9cc990d"), Protocol: classifier.ProtocolCurve},
	}
}

func defaultStablecoins() map[string]string {
	return map[string]string{
		"USDC": "USD", "USDT": "USD", "DAI": "USD", "FRAX": "USD",
		"EURS": "EUR", "EURT": "EUR",
	}
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warn("shutdown requested, draining in-flight units")
		cancel()
	}()
	return ctx
}

// stubTracer is the default Tracer: producing execution traces is an
// external node/tracing concern (spec §1 Non-goals) this module does not
// implement; wire a real Tracer against your node before running.
type stubTracer struct{}

func (stubTracer) TracesForBlock(_ context.Context, blockNumber uint64) ([]pipeline.TxTrace, error) {
	return nil, fmt.Errorf("no tracer wired for block %d: configure a pipeline.Tracer implementation", blockNumber)
}

// ethHeadSource implements pipeline.HeadSource against a live JSON-RPC node.
type ethHeadSource struct {
	client *ethclient.Client
}

func (h ethHeadSource) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return h.client.BlockNumber(ctx)
}

// logSink is the default Sink: it logs the emitted MevBlock summary rather
// than writing it to a real store (spec §1 DB sync transport is out of
// scope; wire a real Sink for production use).
type logSink struct{}

func (logSink) WriteMevBlock(_ context.Context, mb mev.MevBlock) error {
	log.WithFields(log.Fields{
		"block":   mb.BlockNumber,
		"bundles": len(mb.Bundles),
	}).Info("mev block composed")
	return nil
}
