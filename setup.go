package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/loomtrain/tokenfeed/tokenfeed"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// The setup phase writes synthetic token files into the data directory
// so the fetch phase has something realistic to pull from: many files,
// lognormally distributed sizes, the way sharded pretraining corpora
// look on disk.

type benchmarkStepGenerate struct {
	dir       string
	sizes     shardSizes
	seqLen    int
	tokenSize tokenfeed.TokenSize
	vocab     int64
	took      *time.Duration
}

func (g *benchmarkStepGenerate) before() error {
	fmt.Printf(
		"Generating %d token files (%d total sequences) into %s:\n",
		len(g.sizes),
		g.sizes.totalSequences(),
		g.dir,
	)
	fmt.Printf("    - Min: %d sequences\n", g.sizes.min())
	fmt.Printf("    - Max: %d sequences\n", g.sizes.max())
	for _, p := range []float32{10, 25, 50, 75, 99} {
		fmt.Printf("    - p%.0f: %d sequences\n", p, g.sizes.percentile(p))
	}
	return nil
}

func (g *benchmarkStepGenerate) after() error {
	if g.took == nil {
		return errors.New("missing duration, did run() complete?")
	}
	var (
		totalBytes = g.sizes.totalBytes(g.seqLen, g.tokenSize)
		mbps       = float64(totalBytes) / g.took.Seconds() / 1024 / 1024
	)
	fmt.Printf(
		"Generated %d sequences (%d MiB) in %s (%.1f MiB/s)\n",
		g.sizes.totalSequences(),
		totalBytes/1024/1024,
		g.took.Round(time.Second),
		mbps,
	)
	return nil
}

func (g *benchmarkStepGenerate) run(ctx context.Context, logger *slog.Logger) error {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	var (
		start = time.Now()
		eg    = new(errgroup.Group)
		bar   = progressbar.Default(g.sizes.totalSequences(), "generating token files")
	)
	eg.SetLimit(max(runtime.NumCPU()-1, 1))
	for i, size := range g.sizes {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(g.dir, fmt.Sprintf("shard-%04d.bin", i))
			if err := g.writeFile(path, uint64(i), size); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			bar.Add(size)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("generating token files: %w", err)
	}

	logger.Debug(
		"generated token files",
		slog.Int("count", len(g.sizes)),
		slog.String("dir", g.dir),
	)
	g.took = asRef(time.Since(start))
	return nil
}

// writeFile writes `sequences` back-to-back sequences of random tokens.
// Each file gets its own PCG stream so regenerating a directory yields
// byte-identical shards.
func (g *benchmarkStepGenerate) writeFile(path string, seed uint64, sequences int) error {
	var (
		rng    = rand.New(rand.NewPCG(seed, 0))
		vocab  = g.vocab
		tokens = sequences * (g.seqLen + 1)
		buf    = make([]byte, 0, tokens*g.tokenSize.Bytes())
	)
	if g.tokenSize == tokenfeed.TokenSize2 && vocab > 1<<16 {
		vocab = 1 << 16
	}
	for i := 0; i < tokens; i++ {
		tok := rng.Int64N(vocab)
		switch g.tokenSize {
		case tokenfeed.TokenSize2:
			buf = binary.LittleEndian.AppendUint16(buf, uint16(tok))
		case tokenfeed.TokenSize4:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(tok))
		}
	}
	return os.WriteFile(path, buf, 0644)
}

// A helper to return a reference to a value.
func asRef[T any](v T) *T {
	return &v
}
