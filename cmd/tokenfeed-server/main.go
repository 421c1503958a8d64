package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomtrain/tokenfeed/tokenfeed"
)

var (
	flagListenAddr = flag.String(
		"listen",
		"127.0.0.1:7020",
		"The address to listen on for sample requests",
	)
	flagDatasetConfig = flag.String(
		"dataset-config",
		"",
		"Path to the JSON config of the dataset to serve",
	)
	flagAssignments = flag.String(
		"assignments",
		"",
		"Path to the JSON file of per-client batch assignments for the current round. Reloaded on SIGHUP",
	)
	flagStatsInterval = flag.Duration(
		"stats-interval",
		time.Minute,
		"How often to log serving counters. 0 disables",
	)
)

func main() {
	flag.Parse()
	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("top-level error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "DEBUG" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func run(ctx context.Context, logger *slog.Logger) error {
	if *flagDatasetConfig == "" || *flagAssignments == "" {
		flag.Usage()
		return fmt.Errorf("-dataset-config and -assignments are required")
	}

	cfg, err := tokenfeed.LoadDatasetConfig(*flagDatasetConfig)
	if err != nil {
		return fmt.Errorf("loading dataset config: %w", err)
	}
	dataset, err := tokenfeed.BuildDataset(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building dataset: %w", err)
	}
	defer dataset.Close()
	logger.Info(
		"opened dataset",
		slog.String("kind", dataset.Kind()),
		slog.Uint64("sequences", dataset.NumSequences()),
	)

	coord, err := loadCoordinatorView(*flagAssignments)
	if err != nil {
		return fmt.Errorf("loading assignments: %w", err)
	}
	logger.Info(
		"loaded round assignments",
		slog.String("run", coord.RunID),
		slog.Int("clients", len(coord.RoundClients)),
	)

	srv := tokenfeed.NewServer(dataset, coord, logger)

	// Round transitions arrive as SIGHUP: re-read the assignments file
	// and swap the snapshot. In-flight requests keep the old view.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				coord, err := loadCoordinatorView(*flagAssignments)
				if err != nil {
					logger.Error("reloading assignments", slog.Any("error", err))
					continue
				}
				srv.SetCoordinator(coord)
				logger.Info(
					"swapped round assignments",
					slog.String("run", coord.RunID),
					slog.Int("clients", len(coord.RoundClients)),
				)
			}
		}
	}()

	if *flagStatsInterval > 0 {
		go func() {
			tkr := time.NewTicker(*flagStatsInterval)
			defer tkr.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-tkr.C:
					stats := srv.Stats()
					var served uint64
					for _, n := range stats.SequencesServed {
						served += n
					}
					logger.Info(
						"serving counters",
						slog.Int64("active_connections", stats.ActiveConnections),
						slog.Int64("bytes_out", stats.BytesOut),
						slog.Uint64("sequences_served", served),
						slog.Int("identities", len(stats.SequencesServed)),
					)
				}
			}
		}()
	}

	ln, err := net.Listen("tcp", *flagListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", *flagListenAddr, err)
	}
	logger.Info("listening", slog.String("addr", ln.Addr().String()))

	return srv.Serve(ctx, ln)
}

// assignmentsFile is the on-disk shape of a round's assignments: which
// run this is, and for each participating client the closed index
// ranges it may fetch.
type assignmentsFile struct {
	RunID   string `json:"run_id"`
	Clients []struct {
		Identity string      `json:"identity"`
		Ranges   [][2]uint64 `json:"ranges"`
	} `json:"clients"`
}

func loadCoordinatorView(path string) (*tokenfeed.CoordinatorView, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading assignments file: %w", err)
	}
	var af assignmentsFile
	if err := json.Unmarshal(contents, &af); err != nil {
		return nil, fmt.Errorf("parsing assignments file: %w", err)
	}
	if af.RunID == "" {
		return nil, fmt.Errorf("assignments file has no run_id")
	}

	view := &tokenfeed.CoordinatorView{
		RunID:        af.RunID,
		RoundClients: make(map[string]struct{}, len(af.Clients)),
		Assignments:  make(map[string][]tokenfeed.BatchRange, len(af.Clients)),
	}
	for _, client := range af.Clients {
		view.RoundClients[client.Identity] = struct{}{}
		for _, r := range client.Ranges {
			if r[1] < r[0] {
				return nil, fmt.Errorf(
					"client %s has inverted range [%d, %d]",
					client.Identity, r[0], r[1],
				)
			}
			view.Assignments[client.Identity] = append(
				view.Assignments[client.Identity],
				tokenfeed.BatchRange{Start: r[0], End: r[1]},
			)
		}
	}
	return view, nil
}
