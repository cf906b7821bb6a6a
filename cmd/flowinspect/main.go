// Command flowinspect runs the prefetch engine over a clip list for a few
// batches and reports what it produced: per channel statistics, the sampled
// frame positions and, optionally, plots and a CSV of every item.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/Noofbiz/flowprefetch/internal/logx"
	"github.com/Noofbiz/flowprefetch/prefetch"
)

// overrides holds the flag values that replace config file values when the
// flag was given explicitly.
type overrides struct {
	source  string
	root    string
	seed    int64
	workers int
	timeout time.Duration
	set     map[string]bool
}

func (o overrides) apply(cfg *prefetch.Config) {
	if o.set["source"] {
		cfg.Source = o.source
	}
	if o.set["root"] {
		cfg.RootFolder = o.root
	}
	if o.set["seed"] {
		cfg.Seed = o.seed
	}
	if o.set["workers"] {
		cfg.DecodeWorkers = o.workers
	}
	if o.set["frame-timeout"] {
		cfg.FrameTimeout = prefetch.Duration(o.timeout)
	}
}

func main() {
	var (
		configPath     = flag.String("config", "", "path to a JSON engine config")
		source         = flag.String("source", "", "clip list path (overrides config)")
		root           = flag.String("root", "", "folder prepended to every clip list entry (overrides config)")
		seed           = flag.Int64("seed", 0, "random seed (overrides config; 0 = time based)")
		workers        = flag.Int("workers", 0, "concurrent frame decodes per batch (overrides config; 0 = NumCPU)")
		frameTimeout   = flag.Duration("frame-timeout", 0, "per frame decode timeout (overrides config; 0 = none)")
		batches        = flag.Int("batches", 10, "number of batches to pull")
		outDir         = flag.String("out", "plots", "directory for generated plots (empty disables plotting)")
		outCSV         = flag.String("csv", "", "if set, write one row per batch item to this CSV")
		printEffective = flag.Bool("print-effective-config", false, "print the merged (JSON+CLI) configuration and exit")
		debug          = flag.Bool("debug", false, "log per batch timings")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := logx.NewLogger(level)

	var cfg prefetch.Config
	if *configPath != "" {
		var err error
		cfg, err = prefetch.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("load config")
		}
		logger.Info().Str("config", *configPath).Msg("loaded config")
	}
	o := overrides{
		source:  *source,
		root:    *root,
		seed:    *seed,
		workers: *workers,
		timeout: *frameTimeout,
		set:     map[string]bool{},
	}
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	o.apply(&cfg)

	if *printEffective {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			logger.Fatal().Err(err).Msg("marshal config")
		}
		fmt.Println(string(out))
		return
	}
	if cfg.Source == "" {
		fmt.Fprintln(os.Stderr, "Usage: flowinspect -config <cfg.json> | -source <list.txt> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rep, err := run(ctx, cfg, *batches, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("inspect")
	}

	if *outCSV != "" {
		if err := rep.writeCSV(*outCSV); err != nil {
			logger.Fatal().Err(err).Str("path", *outCSV).Msg("write csv")
		}
		logger.Info().Str("path", *outCSV).Int("rows", len(rep.items)).Msg("wrote csv")
	}
	if *outDir != "" {
		paths, err := rep.plot(*outDir)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", *outDir).Msg("write plots")
		}
		for _, p := range paths {
			logger.Info().Str("path", p).Msg("wrote plot")
		}
	}
}

// run pulls up to n batches from a fresh engine and collects a report. An
// interrupt stops early and keeps what was collected.
func run(ctx context.Context, cfg prefetch.Config, n int, logger zerolog.Logger) (*report, error) {
	e, err := prefetch.New(cfg, prefetch.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	defer e.Stop()

	eff := e.Config()
	rep := newReport(eff.PairSizeSub)
	start := time.Now()
	for i := 0; i < n; i++ {
		b, err := e.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Warn().Int("batches", i).Msg("interrupted")
				break
			}
			return nil, err
		}
		means, stds := rep.add(b)
		logger.Info().
			Uint64("seq", b.Seq).
			Floats64("mean", means).
			Floats64("std", stds).
			Msg("batch")
	}

	st := e.Stats()
	elapsed := time.Since(start)
	logger.Info().
		Uint64("batches", st.Batches).
		Uint64("wraps", st.Wraps).
		Dur("plan", st.PlanTime).
		Dur("load", st.LoadTime).
		Dur("elapsed", elapsed).
		Str("data", humanize.IBytes(uint64(4*rep.values))).
		Msg("done")
	return rep, nil
}
