package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/loomtrain/tokenfeed/tokenfeed"

	"github.com/google/uuid"
)

func main() {
	flag.Parse()

	logger := newLogger()

	rctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var exitCode int
	if err := run(rctx, logger); err != nil {
		logger.Error("encountered top-level error", slog.String("error", err.Error()))
		exitCode = 1
	}

	os.Exit(exitCode)
}

type benchmarkStep interface {
	before() error
	run(ctx context.Context, logger *slog.Logger) error
	after() error
}

func run(ctx context.Context, logger *slog.Logger) error {
	if *datasetConfigPath == "" && *dataDir == "" {
		flag.Usage()
		return fmt.Errorf("one of -dataset-config or -data-dir is required")
	}

	runID := uuid.NewString()
	logger.Info("starting benchmark run", slog.String("run", runID))

	tokenSize, err := tokenfeed.ParseTokenSize(*tokenWidth)
	if err != nil {
		return err
	}

	if *generateFiles > 0 {
		if *dataDir == "" {
			return fmt.Errorf("-generate-files requires -data-dir")
		}
		var sizes shardSizes
		if *generateLognormalSigma == 0 {
			sizes = planUniformShardSizes(*generateFiles, *generateSizeMin)
		} else {
			sizes = planLognormalShardSizes(
				*generateFiles,
				*generateSizeMin,
				*generateSizeMax,
				*generateLognormalMu,
				*generateLognormalSigma,
			)
		}
		generate := &benchmarkStepGenerate{
			dir:       *dataDir,
			sizes:     sizes,
			seqLen:    *seqLen,
			tokenSize: tokenSize,
			vocab:     int64(*vocabSize),
		}
		if err := runStep(ctx, logger, generate); err != nil {
			return fmt.Errorf("generate step: %w", err)
		}
	}

	dataset, err := openDataset(ctx, tokenSize)
	if err != nil {
		return fmt.Errorf("opening dataset: %w", err)
	}
	defer dataset.Close()
	logger.Info(
		"opened dataset",
		slog.String("kind", dataset.Kind()),
		slog.Uint64("sequences", dataset.NumSequences()),
	)

	warnIfRemoteFetchOffCloud(ctx, logger, dataset.Kind())

	if *fetchQps <= 0 {
		logger.Warn("-fetch-qps is 0, no work to do")
		return nil
	}

	numStarts := int(dataset.NumSequences()) - *batchSize + 1
	if numStarts <= 0 {
		return fmt.Errorf(
			"dataset of %d sequences cannot serve batches of %d",
			dataset.NumSequences(),
			*batchSize,
		)
	}
	const distributionSeed = 42
	var dist fetchDistribution
	switch *fetchDistributionName {
	case "uniform":
		dist = newUniformFetchDistribution(numStarts, distributionSeed)
	case "pareto":
		dist = newParetoFetchDistribution(numStarts, *paretoAlpha, distributionSeed)
	default:
		return fmt.Errorf("unknown fetch distribution %q", *fetchDistributionName)
	}

	var warmupPeriod time.Duration
	if *fetchQps > 5 {
		const warmupPer5Qps = time.Second * 10
		warmupPeriod = time.Duration(*fetchQps/5) * warmupPer5Qps
	}

	fetch := &benchmarkStepFetch{
		dataset:        dataset,
		qps:            *fetchQps,
		batchSize:      *batchSize,
		dist:           dist,
		warmupPeriod:   warmupPeriod,
		duration:       *fetchDuration,
		reportInterval: *reportInterval,
	}
	if err := runStep(ctx, logger, fetch); err != nil {
		return fmt.Errorf("fetch step: %w", err)
	}

	return nil
}

func runStep(ctx context.Context, logger *slog.Logger, step benchmarkStep) error {
	if err := step.before(); err != nil {
		return err
	}
	if err := step.run(ctx, logger); err != nil {
		return err
	}
	return step.after()
}

func openDataset(ctx context.Context, tokenSize tokenfeed.TokenSize) (*tokenfeed.Dataset, error) {
	if *datasetConfigPath != "" {
		cfg, err := tokenfeed.LoadDatasetConfig(*datasetConfigPath)
		if err != nil {
			return nil, err
		}
		return tokenfeed.BuildDataset(ctx, cfg)
	}

	shuffle := tokenfeed.NoShuffle()
	if *shuffleSeed >= 0 {
		shuffle = tokenfeed.SeededShuffle(uint64(*shuffleSeed))
	}
	local, err := tokenfeed.NewLocalDataset(*dataDir, *seqLen, tokenSize, shuffle)
	if err != nil {
		return nil, err
	}
	return tokenfeed.DatasetFromLocal(local), nil
}
