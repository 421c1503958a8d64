package tokenfeed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// tokenFileHandler serves a byte blob with HEAD size discovery and
// inclusive range requests, the way an object store does.
type tokenFileHandler struct {
	data       []byte
	getCount   atomic.Int64
	delayNanos atomic.Int64
}

func (h *tokenFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		w.Header().Set("Content-Length", strconv.Itoa(len(h.data)))
	case http.MethodGet:
		h.getCount.Add(1)
		if d := h.delayNanos.Load(); d > 0 {
			time.Sleep(time.Duration(d))
		}
		spec := r.Header.Get("Range")
		if !strings.HasPrefix(spec, "bytes=") {
			http.Error(w, "missing range", http.StatusBadRequest)
			return
		}
		first, last, ok := strings.Cut(strings.TrimPrefix(spec, "bytes="), "-")
		if !ok {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		s, _ := strconv.ParseInt(first, 10, 64)
		e, _ := strconv.ParseInt(last, 10, 64)
		if s < 0 || e >= int64(len(h.data)) || e < s {
			http.Error(w, "unsatisfiable", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", s, e, len(h.data)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(h.data[s : e+1])
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func u16le(tokens ...int) []byte {
	buf := make([]byte, 0, len(tokens)*2)
	for _, tok := range tokens {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(tok))
	}
	return buf
}

func TestHTTPSingleRange(t *testing.T) {
	handler := &tokenFileHandler{data: u16le(1, 2, 3)}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ds, err := NewHTTPDataset(
		context.Background(),
		[]string{srv.URL + "/shard.ds"},
		2, TokenSize2, NoShuffle(),
	)
	if err != nil {
		t.Fatalf("NewHTTPDataset: %v", err)
	}
	if got := ds.NumSequences(); got != 1 {
		t.Fatalf("NumSequences = %d, want 1", got)
	}

	got, err := ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 0})
	if err != nil {
		t.Fatalf("GetSamples: %v", err)
	}
	if want := [][]int32{{1, 2, 3}}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestHTTPCoalescesContiguousRanges(t *testing.T) {
	var (
		handlerA = &tokenFileHandler{data: u16le(1, 2, 3, 4, 5, 6)}
		handlerB = &tokenFileHandler{data: u16le(7, 8, 9)}
	)
	srvA := httptest.NewServer(handlerA)
	defer srvA.Close()
	srvB := httptest.NewServer(handlerB)
	defer srvB.Close()

	ds, err := NewHTTPDataset(
		context.Background(),
		[]string{srvA.URL + "/a.ds", srvB.URL + "/b.ds"},
		2, TokenSize2, NoShuffle(),
	)
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.NumSequences(); got != 3 {
		t.Fatalf("NumSequences = %d, want 3", got)
	}

	got, err := ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 2})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// Three sequences across two files, contiguous within each: exactly
	// one range request per file.
	if a, b := handlerA.getCount.Load(), handlerB.getCount.Load(); a != 1 || b != 1 {
		t.Errorf("range requests: file a %d, file b %d, want 1 each", a, b)
	}
}

func TestHTTPGroupPointers(t *testing.T) {
	handler := &tokenFileHandler{data: u16le(1, 2, 3, 4, 5, 6, 7, 8, 9)}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ds, err := NewHTTPDataset(
		context.Background(),
		[]string{srv.URL + "/shard.ds"},
		2, TokenSize2, SeededShuffle(1),
	)
	if err != nil {
		t.Fatal(err)
	}

	// Seed 1 permutes 3 sequences to [1 2 0]: positions 0-1 are
	// byte-contiguous, position 2 is not.
	groups := ds.groupPointers(BatchRange{Start: 0, End: 2})
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(groups), groups)
	}
	if groups[0].offset != 6 || groups[0].count != 2 || groups[1].offset != 0 || groups[1].count != 1 {
		t.Errorf("unexpected grouping: %+v", groups)
	}
}

func TestHTTPShuffleDeterminism(t *testing.T) {
	handler := &tokenFileHandler{data: u16le(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18)}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	build := func() [][]int32 {
		ds, err := NewHTTPDataset(
			context.Background(),
			[]string{srv.URL + "/shard.ds"},
			2, TokenSize2, SeededShuffle(42),
		)
		if err != nil {
			t.Fatal(err)
		}
		got, err := ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 5})
		if err != nil {
			t.Fatal(err)
		}
		return got
	}
	if a, b := build(), build(); !reflect.DeepEqual(a, b) {
		t.Errorf("independent constructions disagree: %v vs %v", a, b)
	}
}

func TestHTTPTruncatedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "12")
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0x01, 0x00}) // far short of the range
	}))
	defer srv.Close()

	ds, err := NewHTTPDataset(
		context.Background(),
		[]string{srv.URL + "/shard.ds"},
		2, TokenSize2, NoShuffle(),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 0}); !HasKind(err, KindTruncated) {
		t.Errorf("expected truncated error, got %v", err)
	}
}

func TestHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "12")
			return
		}
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	ds, err := NewHTTPDataset(
		context.Background(),
		[]string{srv.URL + "/shard.ds"},
		2, TokenSize2, NoShuffle(),
	)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 0})
	if !HasKind(err, KindHTTPStatus) {
		t.Fatalf("expected http status error, got %v", err)
	}
	var te *Error
	if !errors.As(err, &te) || te.Code != http.StatusNotFound {
		t.Errorf("expected code 404, got %+v", te)
	}
}

func TestHTTPRequestTimeout(t *testing.T) {
	handler := &tokenFileHandler{data: u16le(1, 2, 3)}
	handler.delayNanos.Store(int64(200 * time.Millisecond))
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ds, err := NewHTTPDataset(
		context.Background(),
		[]string{srv.URL + "/shard.ds"},
		2, TokenSize2, NoShuffle(),
		WithRequestTimeout(20*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 0}); !HasKind(err, KindTimeout) {
		t.Errorf("expected timeout error, got %v", err)
	}

	// The dataset stays healthy after a timed-out call.
	handler.delayNanos.Store(0)
	got, err := ds.GetSamples(context.Background(), BatchRange{Start: 0, End: 0})
	if err != nil {
		t.Fatalf("GetSamples after timeout: %v", err)
	}
	if want := [][]int32{{1, 2, 3}}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestHTTPDiscoveryFailureFailsConstruction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPDataset(
		context.Background(),
		[]string{srv.URL + "/shard.ds"},
		2, TokenSize2, NoShuffle(),
	)
	if !HasKind(err, KindHTTPStatus) {
		t.Errorf("expected http status error, got %v", err)
	}
}

func TestTemplateURLs(t *testing.T) {
	urls, err := TemplateURLs("https://host/data/{}.ds", 8, 11, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"https://host/data/0008.ds",
		"https://host/data/0009.ds",
		"https://host/data/0010.ds",
		"https://host/data/0011.ds",
	}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("got %v, want %v", urls, want)
	}

	urls, err = TemplateURLs("https://host/{}.bin", 2, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"https://host/2.bin"}; !reflect.DeepEqual(urls, want) {
		t.Errorf("got %v, want %v", urls, want)
	}

	if _, err := TemplateURLs("https://host/fixed.ds", 0, 3, 0); !HasKind(err, KindConfig) {
		t.Errorf("expected config error for missing placeholder, got %v", err)
	}
	if _, err := TemplateURLs("https://host/{}.ds", 3, 0, 0); !HasKind(err, KindConfig) {
		t.Errorf("expected config error for empty range, got %v", err)
	}
}
