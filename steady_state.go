package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/loomtrain/tokenfeed/tokenfeed"
)

// The steady-state portion of the benchmark fetches batches at a
// configurable rate. After a period of time (or an interrupt), the
// benchmark exits and prints a summary of the results.

type benchmarkStepFetch struct {
	dataset        *tokenfeed.Dataset
	qps            float64
	batchSize      int
	dist           fetchDistribution
	warmupPeriod   time.Duration
	duration       time.Duration
	reportInterval time.Duration
}

func (f *benchmarkStepFetch) before() error {
	fmt.Printf("Fetching batches at %.1f QPS from a %s dataset\n", f.qps, f.dataset.Kind())
	fmt.Printf("    - Dataset length: %d sequences\n", f.dataset.NumSequences())
	fmt.Printf("    - Batch size: %d sequences\n", f.batchSize)
	fmt.Printf("    - Start indices drawn from a %s distribution\n", f.dist.name())
	if f.warmupPeriod > 0 {
		fmt.Printf("    - QPS ramp-up period of %s\n", f.warmupPeriod)
	}
	if f.duration > 0 {
		fmt.Printf("    - Running for %s\n", f.duration)
	}
	fmt.Println("")
	return nil
}

func (f *benchmarkStepFetch) after() error {
	return nil
}

func (f *benchmarkStepFetch) run(ctx context.Context, logger *slog.Logger) error {
	if f.qps == 0 {
		return errors.New("no fetches to run")
	}
	numStarts := int(f.dataset.NumSequences()) - f.batchSize + 1
	if numStarts <= 0 {
		return fmt.Errorf(
			"dataset of %d sequences cannot serve batches of %d",
			f.dataset.NumSequences(),
			f.batchSize,
		)
	}

	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	noReports := f.reportInterval <= 0
	reportEvery := min(f.reportInterval, time.Second*30)
	if noReports {
		reportEvery = time.Second * 30
	}

	var (
		start     = time.Now()
		reportTkr = time.NewTicker(reportEvery)
		reporter  = &fetchPerformanceReporter{}
	)
	if noReports {
		reportTkr.Stop() // No reports
	}
	defer func() {
		reportTkr.Stop()
		reporter.printFinalReport(time.Since(start))
	}()

	for {
		var (
			targetQps = f.targetQps(time.Since(start))
			interval  = time.Duration(float64(time.Second) * (1 / targetQps))
		)
		select {
		case <-ctx.Done():
			return nil
		case <-reportTkr.C:
			reporter.printReport(reportEvery)
		case <-time.After(interval):
			batchStart := uint64(f.dist.sample())
			go func() {
				var (
					br = tokenfeed.BatchRange{
						Start: batchStart,
						End:   batchStart + uint64(f.batchSize) - 1,
					}
					fetchStart = time.Now()
				)
				sequences, err := f.dataset.GetSamples(ctx, br)
				latency := time.Since(fetchStart)
				if err != nil {
					if errors.Is(err, context.Canceled) ||
						errors.Is(err, context.DeadlineExceeded) {
						return
					}
					logger.Warn(
						"failed to fetch batch",
						slog.Uint64("start", br.Start),
						slog.Uint64("end", br.End),
						slog.String("error", err.Error()),
					)
					return
				}
				reporter.addFetch(f.dataset.Kind(), latency)
				logger.Debug(
					"fetched batch",
					slog.Uint64("start", br.Start),
					slog.Int("sequences", len(sequences)),
					slog.Duration("latency", latency),
					slog.String(sourceKindAttrKey, f.dataset.Kind()),
				)
			}()
		}
	}
}

func (f *benchmarkStepFetch) targetQps(timeSinceStart time.Duration) float64 {
	current := f.qps
	if since := timeSinceStart; since < f.warmupPeriod {
		current = max(
			f.qps/20,
			f.qps*float64(since)/float64(f.warmupPeriod),
		)
	}
	return current
}

type latencies struct {
	samples     []time.Duration
	numInPeriod int
}

func (fl *latencies) viewInPeriod() *latencies {
	return &latencies{
		samples:     fl.samples[len(fl.samples)-fl.numInPeriod:],
		numInPeriod: fl.numInPeriod,
	}
}

func (fl *latencies) sort() {
	slices.Sort(fl.samples)
}

func (fl *latencies) percentile(p float32) time.Duration {
	idx := int(float32(len(fl.samples)) * p / 100)
	return fl.samples[idx]
}

type fetchPerformanceReporter struct {
	lock    sync.Mutex
	sources map[string]*latencies
}

func (fpr *fetchPerformanceReporter) addFetch(kind string, duration time.Duration) {
	fpr.lock.Lock()
	defer fpr.lock.Unlock()
	if fpr.sources == nil {
		fpr.sources = make(map[string]*latencies)
	}
	if _, ok := fpr.sources[kind]; !ok {
		fpr.sources[kind] = &latencies{}
	}
	fl := fpr.sources[kind]
	fl.samples = append(fl.samples, duration)
	fl.numInPeriod++
}

// Assumes lock held.
func (fpr *fetchPerformanceReporter) sourceReport(kind string, fl *latencies) string {
	fl.sort()
	var builder strings.Builder
	if color, ok := sourceKindColor(kind); ok {
		builder.WriteString(color)
		builder.WriteString(kind)
		builder.WriteString("\x1b[0m ")
	} else {
		builder.WriteString(kind)
		builder.WriteRune(' ')
	}
	builder.WriteString(
		fmt.Sprintf(
			"fetches (%d), latencies (ms): p25=%d, p50=%d, p75=%d, p90=%d, p99=%d",
			fl.numInPeriod,
			fl.percentile(25).Milliseconds(),
			fl.percentile(50).Milliseconds(),
			fl.percentile(75).Milliseconds(),
			fl.percentile(90).Milliseconds(),
			fl.percentile(99).Milliseconds(),
		),
	)
	return builder.String()
}

func (fpr *fetchPerformanceReporter) printReport(reportInterval time.Duration) {
	fpr.lock.Lock()
	defer fpr.lock.Unlock()

	var (
		builder      strings.Builder
		totalFetches int
	)
	for kind, fl := range fpr.sources {
		if fl.numInPeriod == 0 {
			continue
		}
		inPeriod := fl.viewInPeriod()
		builder.WriteString("    - ")
		builder.WriteString(fpr.sourceReport(kind, inPeriod))
		builder.WriteRune('\n')
		totalFetches += inPeriod.numInPeriod
		fl.numInPeriod = 0
	}

	fmt.Printf("%d fetches in the last %s\n", totalFetches, reportInterval)
	fmt.Print(builder.String())
	fmt.Println("")
}

func (fpr *fetchPerformanceReporter) printFinalReport(totalElapsed time.Duration) {
	fpr.lock.Lock()
	defer fpr.lock.Unlock()

	if fpr.sources == nil {
		return
	}

	var (
		combined []time.Duration
		builder  strings.Builder
	)
	for kind, fl := range fpr.sources {
		fl.numInPeriod = len(fl.samples)
		combined = append(combined, fl.samples...)
		builder.WriteString("    - ")
		builder.WriteString(fpr.sourceReport(kind, fl))
		builder.WriteRune('\n')
	}

	slices.Sort(combined)
	percentile := func(p float32) time.Duration {
		idx := int(float32(len(combined)) * p / 100)
		return combined[idx]
	}

	fmt.Println("Final fetch performance report:")
	fmt.Printf("    - Total elapsed time: %s\n", totalElapsed.Round(time.Second))
	fmt.Printf("    - Total fetches: %d\n", len(combined))
	for _, p := range []float32{25, 50, 75, 90, 99} {
		fmt.Printf("    - combined p%.1f: %d ms\n", p, percentile(p).Milliseconds())
	}
	fmt.Print(builder.String())
}
