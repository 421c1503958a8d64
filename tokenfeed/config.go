package tokenfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// DatasetConfig is the JSON description of a dataset tree. The "kind"
// tag selects the variant:
//
//   - "local":  {"kind":"local","dir":…,"seq_len":…,"token_size":2|4,"shuffle":{"seed":…}}
//   - "http":   {"kind":"http","urls":[…]} or {"url_template":{"template":…,"start":…,"end":…,"pad":…}}
//     or {"gcs":{"bucket":…,"prefix":…}}, plus seq_len/token_size/shuffle
//   - "tcp":    {"kind":"tcp","addr":…,"run_id":…,"identity":…}
//   - "dummy":  {"kind":"dummy","num_sequences":…,"seq_len":…}
//   - "explicit" / "by_length": weighted composition over "entries",
//     each {"provider":<DatasetConfig>,"weight":<f64>?}, with
//     "virtual_length" and an optional "shuffle"
type DatasetConfig struct {
	Kind string `json:"kind"`

	// local
	Dir string `json:"dir,omitempty"`

	// http
	URLs        []string           `json:"urls,omitempty"`
	URLTemplate *URLTemplateConfig `json:"url_template,omitempty"`
	GCS         *GCSConfig         `json:"gcs,omitempty"`

	// tcp
	Addr     string `json:"addr,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Identity string `json:"identity,omitempty"`

	// weighted ("explicit" or "by_length")
	Entries       []WeightedEntryConfig `json:"entries,omitempty"`
	VirtualLength uint64                `json:"virtual_length,omitempty"`

	// dummy
	NumSequences uint64 `json:"num_sequences,omitempty"`

	SeqLen    int            `json:"seq_len,omitempty"`
	TokenSize int            `json:"token_size,omitempty"`
	Shuffle   *ShuffleConfig `json:"shuffle,omitempty"`
}

// URLTemplateConfig expands to a URL list per TemplateURLs.
type URLTemplateConfig struct {
	Template string `json:"template"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Pad      int    `json:"pad,omitempty"`
}

// GCSConfig lists a public bucket.
type GCSConfig struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
}

// WeightedEntryConfig is one sub-provider of a weighted composition.
// Weight is required for "explicit" mode and ignored for "by_length".
type WeightedEntryConfig struct {
	Provider *DatasetConfig `json:"provider"`
	Weight   float64        `json:"weight,omitempty"`
}

// ShuffleConfig selects the shuffle discipline. A missing or null seed
// means no shuffle.
type ShuffleConfig struct {
	Seed *uint64 `json:"seed"`
}

func (sc *ShuffleConfig) shuffle() Shuffle {
	if sc == nil || sc.Seed == nil {
		return NoShuffle()
	}
	return SeededShuffle(*sc.Seed)
}

// LoadDatasetConfig reads and parses a dataset config file.
func LoadDatasetConfig(path string) (*DatasetConfig, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg DatasetConfig
	if err := json.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}

func (cfg *DatasetConfig) tokenSize() (TokenSize, error) {
	return ParseTokenSize(cfg.TokenSize)
}

// BuildDataset constructs the dataset tree a config describes. The
// returned façade owns every constructed sub-dataset.
func BuildDataset(ctx context.Context, cfg *DatasetConfig) (*Dataset, error) {
	switch cfg.Kind {
	case "local":
		ts, err := cfg.tokenSize()
		if err != nil {
			return nil, err
		}
		ds, err := NewLocalDataset(cfg.Dir, cfg.SeqLen, ts, cfg.Shuffle.shuffle())
		if err != nil {
			return nil, err
		}
		return DatasetFromLocal(ds), nil

	case "http":
		ts, err := cfg.tokenSize()
		if err != nil {
			return nil, err
		}
		urls, err := cfg.resolveURLs(ctx)
		if err != nil {
			return nil, err
		}
		ds, err := NewHTTPDataset(ctx, urls, cfg.SeqLen, ts, cfg.Shuffle.shuffle())
		if err != nil {
			return nil, err
		}
		return DatasetFromHTTP(ds), nil

	case "tcp":
		ds, err := DialRemoteDataset(ctx, cfg.Addr, cfg.RunID, cfg.Identity)
		if err != nil {
			return nil, err
		}
		return DatasetFromRemote(ds), nil

	case "dummy":
		return DatasetFromDummy(NewDummyDataset(cfg.NumSequences, cfg.SeqLen)), nil

	case "explicit", "by_length":
		return buildWeighted(ctx, cfg)

	default:
		return nil, errorf(KindConfig, "unknown dataset kind %q", cfg.Kind)
	}
}

func (cfg *DatasetConfig) resolveURLs(ctx context.Context) ([]string, error) {
	specified := 0
	if len(cfg.URLs) > 0 {
		specified++
	}
	if cfg.URLTemplate != nil {
		specified++
	}
	if cfg.GCS != nil {
		specified++
	}
	if specified != 1 {
		return nil, errorf(
			KindConfig,
			"http dataset needs exactly one of urls, url_template or gcs",
		)
	}
	switch {
	case len(cfg.URLs) > 0:
		return cfg.URLs, nil
	case cfg.URLTemplate != nil:
		t := cfg.URLTemplate
		return TemplateURLs(t.Template, t.Start, t.End, t.Pad)
	default:
		return GCSBucketURLs(ctx, http.DefaultClient, cfg.GCS.Bucket, cfg.GCS.Prefix)
	}
}

func buildWeighted(ctx context.Context, cfg *DatasetConfig) (*Dataset, error) {
	if len(cfg.Entries) == 0 {
		return nil, errorf(KindConfig, "weighted dataset has no entries")
	}
	built := make([]*Dataset, 0, len(cfg.Entries))
	closeAll := func() {
		for _, d := range built {
			d.Close()
		}
	}
	for i, entry := range cfg.Entries {
		if entry.Provider == nil {
			closeAll()
			return nil, errorf(KindConfig, "weighted entry %d has no provider", i)
		}
		sub, err := BuildDataset(ctx, entry.Provider)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("building weighted entry %d: %w", i, err)
		}
		built = append(built, sub)
	}

	var (
		weighted *WeightedDataset
		err      error
	)
	if cfg.Kind == "explicit" {
		entries := make([]WeightedEntry, len(built))
		for i, sub := range built {
			entries[i] = WeightedEntry{Dataset: sub, Weight: cfg.Entries[i].Weight}
		}
		weighted, err = NewWeightedDataset(entries, cfg.VirtualLength, cfg.Shuffle.shuffle())
	} else {
		weighted, err = NewLengthWeightedDataset(built, cfg.VirtualLength, cfg.Shuffle.shuffle())
	}
	if err != nil {
		closeAll()
		return nil, err
	}
	return DatasetFromWeighted(weighted), nil
}
