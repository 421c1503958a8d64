package tokenfeed

import (
	"slices"
	"testing"
)

func TestBuildPointers(t *testing.T) {
	catalogue := []FileEntry{
		{Locator: "a", Size: 12}, // 2 sequences
		{Locator: "b", Size: 8},  // 1 sequence, 2-byte tail dropped
	}
	pointers, err := buildPointers(catalogue, 6)
	if err != nil {
		t.Fatalf("buildPointers: %v", err)
	}
	want := []SequencePointer{
		{File: 0, Offset: 0},
		{File: 0, Offset: 6},
		{File: 1, Offset: 0},
	}
	if !slices.Equal(pointers, want) {
		t.Errorf("got %v, want %v", pointers, want)
	}
}

func TestBuildPointersTooSmall(t *testing.T) {
	_, err := buildPointers([]FileEntry{{Locator: "a", Size: 4}}, 6)
	if !HasKind(err, KindAlignment) {
		t.Errorf("expected alignment error, got %v", err)
	}
}

func TestBuildPointersEmptyFile(t *testing.T) {
	_, err := buildPointers([]FileEntry{{Locator: "a", Size: 0}}, 6)
	if !HasKind(err, KindConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}
