package main

import (
	"flag"
	"time"
)

var datasetConfigPath = flag.String(
	"dataset-config",
	"",
	"path to a JSON dataset config. takes precedence over -data-dir",
)

var dataDir = flag.String(
	"data-dir",
	"",
	"directory of token files to serve batches from (and to generate into)",
)

var seqLen = flag.Int(
	"seq-len",
	128,
	"context window length in tokens. each sequence carries one extra next-token target",
)

var tokenWidth = flag.Int(
	"token-width",
	2,
	"on-disk token width in bytes, 2 or 4",
)

var shuffleSeed = flag.Int64(
	"shuffle-seed",
	-1,
	"seed for the deterministic sequence shuffle. negative disables shuffling",
)

var generateFiles = flag.Int(
	"generate-files",
	0,
	"number of synthetic token files to generate into -data-dir before fetching. disabled if 0",
)

var generateSizeMin = flag.Int(
	"generate-each-size-min",
	1_000,
	"the minimum number of sequences in each generated file. sizes follow a lognormal distribution",
)

var generateSizeMax = flag.Int(
	"generate-each-size-max",
	20_000,
	"the maximum number of sequences in each generated file. sizes follow a lognormal distribution",
)

var generateLognormalMu = flag.Float64(
	"generate-lognormal-mu",
	0,
	"the mu parameter for the lognormal distribution of generated file sizes",
)

var generateLognormalSigma = flag.Float64(
	"generate-lognormal-sigma",
	0.95,
	"the sigma parameter for the lognormal distribution of generated file sizes. 0 makes every file -generate-each-size-min sequences",
)

var vocabSize = flag.Int(
	"vocab-size",
	50_257,
	"token id range for generated files. clamped to what -token-width can hold",
)

var fetchQps = flag.Float64(
	"fetch-qps",
	3,
	"number of batch fetches per second to issue against the dataset",
)

var batchSize = flag.Int(
	"batch-size",
	32,
	"number of sequences per fetched batch",
)

var fetchDistributionName = flag.String(
	"fetch-distribution",
	"uniform",
	"distribution of batch start indices, one of: uniform, pareto",
)

var paretoAlpha = flag.Float64(
	"pareto-alpha",
	1.1,
	"the alpha parameter for the pareto fetch distribution",
)

var fetchDuration = flag.Duration(
	"fetch-duration",
	0,
	"how long to run the fetch phase. 0 runs until interrupted",
)

var reportInterval = flag.Duration(
	"report-interval",
	time.Second*5,
	"how often to log a report of the benchmark progress",
)
