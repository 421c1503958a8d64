package tokenfeed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuildDatasetWeightedConfig(t *testing.T) {
	raw := `{
		"kind": "explicit",
		"entries": [
			{"provider": {"kind": "dummy", "num_sequences": 100, "seq_len": 2}, "weight": 0.25},
			{"provider": {"kind": "dummy", "num_sequences": 100, "seq_len": 2}, "weight": 0.75}
		],
		"virtual_length": 1000,
		"shuffle": {"seed": 42}
	}`
	var cfg DatasetConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatal(err)
	}
	ds, err := BuildDataset(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	defer ds.Close()

	if ds.Kind() != "weighted" {
		t.Errorf("kind = %q, want weighted", ds.Kind())
	}
	if got := ds.NumSequences(); got != 1000 {
		t.Errorf("NumSequences = %d, want 1000", got)
	}
	got, err := ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 9})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Errorf("got %d sequences, want 10", len(got))
	}
}

func TestBuildDatasetByLengthConfig(t *testing.T) {
	raw := `{
		"kind": "by_length",
		"entries": [
			{"provider": {"kind": "dummy", "num_sequences": 30, "seq_len": 1}},
			{"provider": {"kind": "dummy", "num_sequences": 10, "seq_len": 1}}
		],
		"virtual_length": 40
	}`
	var cfg DatasetConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatal(err)
	}
	ds, err := BuildDataset(context.Background(), &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()
	if got := ds.NumSequences(); got != 40 {
		t.Errorf("NumSequences = %d, want 40", got)
	}
}

func TestLoadDatasetConfigLocal(t *testing.T) {
	dir := t.TempDir()
	writeTokenFile(t, filepath.Join(dir, "shard.bin"), 1, 6)

	cfgPath := filepath.Join(dir, "dataset.json")
	cfg := DatasetConfig{
		Kind:      "local",
		Dir:       dir,
		SeqLen:    2,
		TokenSize: 2,
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, raw, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadDatasetConfig(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := BuildDataset(context.Background(), loaded)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	got, err := ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int32{{1, 2, 3}, {4, 5, 6}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBuildDatasetErrors(t *testing.T) {
	cases := []DatasetConfig{
		{Kind: "teleport"},
		{Kind: "local", Dir: "/nonexistent", SeqLen: 2, TokenSize: 3},
		{Kind: "http", SeqLen: 2, TokenSize: 2}, // no source
		{Kind: "http", SeqLen: 2, TokenSize: 2, // two sources
			URLs: []string{"http://x/a.ds"},
			GCS:  &GCSConfig{Bucket: "b"}},
		{Kind: "explicit", VirtualLength: 10}, // no entries
	}
	for _, cfg := range cases {
		if _, err := BuildDataset(context.Background(), &cfg); err == nil {
			t.Errorf("config %+v: expected error", cfg)
		}
	}
}
