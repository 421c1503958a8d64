package tokenfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// Hard deadline for every individual HTTP call. Retry policy lives
	// with the caller, not here.
	httpRequestTimeout = 5 * time.Second

	// Concurrency cap for size discovery at construction.
	headDiscoveryLimit = 32
)

// HTTPDataset serves sequences from remote files via ranged GETs. File
// sizes are discovered once with HEAD requests; afterwards every batch
// is fetched with as few range requests as its pointer layout allows,
// issued in parallel over a shared connection pool.
type HTTPDataset struct {
	client    *http.Client
	timeout   time.Duration
	seqLen    int
	tokenSize TokenSize
	seqBytes  int64
	catalogue []FileEntry
	pointers  []SequencePointer
}

// HTTPOption configures an HTTPDataset.
type HTTPOption func(*HTTPDataset)

// WithHTTPClient sets the HTTP client used for all requests. The client
// (and its connection pool) is shared across calls, never per-call.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(ds *HTTPDataset) {
		ds.client = client
	}
}

// WithRequestTimeout overrides the per-request deadline.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(ds *HTTPDataset) {
		ds.timeout = d
	}
}

// TemplateURLs expands a printf-style template containing a single "{}"
// placeholder over the closed integer range [start, end]. A pad width
// > 0 left-zero-pads the number to that many digits.
func TemplateURLs(template string, start, end, pad int) ([]string, error) {
	if !strings.Contains(template, "{}") {
		return nil, errorf(KindConfig, "url template %q has no {} placeholder", template)
	}
	if end < start {
		return nil, errorf(KindConfig, "url template range [%d, %d] is empty", start, end)
	}
	urls := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		var num string
		if pad > 0 {
			num = fmt.Sprintf("%0*d", pad, i)
		} else {
			num = fmt.Sprintf("%d", i)
		}
		urls = append(urls, strings.Replace(template, "{}", num, 1))
	}
	return urls, nil
}

// NewHTTPDataset builds a dataset over an explicit URL list, discovering
// file sizes concurrently. Any discovery failure fails construction.
func NewHTTPDataset(
	ctx context.Context,
	urls []string,
	seqLen int,
	ts TokenSize,
	shuffle Shuffle,
	opts ...HTTPOption,
) (*HTTPDataset, error) {
	if len(urls) == 0 {
		return nil, errorf(KindConfig, "no urls in catalogue")
	}

	ds := &HTTPDataset{
		client:    http.DefaultClient,
		timeout:   httpRequestTimeout,
		seqLen:    seqLen,
		tokenSize: ts,
		seqBytes:  SequenceBytes(seqLen, ts),
		catalogue: make([]FileEntry, len(urls)),
	}
	for _, opt := range opts {
		opt(ds)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(headDiscoveryLimit)
	for i, url := range urls {
		eg.Go(func() error {
			size, err := ds.discoverSize(ctx, url)
			if err != nil {
				return fmt.Errorf("discovering size of %s: %w", url, err)
			}
			ds.catalogue[i] = FileEntry{Locator: url, Size: size}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	pointers, err := buildPointers(ds.catalogue, ds.seqBytes)
	if err != nil {
		return nil, err
	}
	shufflePointers(pointers, shuffle)
	ds.pointers = pointers

	return ds, nil
}

func (ds *HTTPDataset) discoverSize(ctx context.Context, url string) (int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, ds.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("constructing head request: %w", err)
	}
	resp, err := ds.client.Do(req)
	if err != nil {
		return 0, wrapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, httpStatusError(resp.StatusCode, "head %s", url)
	}
	if resp.ContentLength < 0 {
		return 0, errorf(KindConfig, "head %s returned no Content-Length", url)
	}
	return resp.ContentLength, nil
}

// NumSequences reports the number of addressable sequences.
func (ds *HTTPDataset) NumSequences() uint64 {
	return uint64(len(ds.pointers))
}

// rangeGroup is one coalesced HTTP range request covering count
// consecutive batch positions whose sequences are byte-contiguous in a
// single file.
type rangeGroup struct {
	file     int
	offset   int64
	count    int64
	batchPos int // index into the result slice of the first sequence
}

func (ds *HTTPDataset) groupPointers(br BatchRange) []rangeGroup {
	var groups []rangeGroup
	for idx := br.Start; idx <= br.End; idx++ {
		ptr := ds.pointers[idx]
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			if ptr.File == last.file && ptr.Offset == last.offset+last.count*ds.seqBytes {
				last.count++
				continue
			}
		}
		groups = append(groups, rangeGroup{
			file:     ptr.File,
			offset:   ptr.Offset,
			count:    1,
			batchPos: int(idx - br.Start),
		})
	}
	return groups
}

// GetSamples fetches all coalesced range groups for the batch in
// parallel, reassembles them by original batch position and converts.
// Cancelling ctx cancels every outstanding request; the dataset remains
// usable afterwards.
func (ds *HTTPDataset) GetSamples(ctx context.Context, br BatchRange) ([][]int32, error) {
	if err := br.validate(ds.NumSequences()); err != nil {
		return nil, err
	}

	var (
		groups    = ds.groupPointers(br)
		sequences = make([][]int32, br.Width())
	)
	eg, ctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		eg.Go(func() error {
			body, err := ds.fetchRange(ctx, group)
			if err != nil {
				return err
			}
			for i := int64(0); i < group.count; i++ {
				raw := body[i*ds.seqBytes : (i+1)*ds.seqBytes]
				tokens, err := DecodeTokens(raw, ds.tokenSize)
				if err != nil {
					return fmt.Errorf("decoding sequence: %w", err)
				}
				sequences[group.batchPos+int(i)] = tokens
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sequences, nil
}

func (ds *HTTPDataset) fetchRange(ctx context.Context, group rangeGroup) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, ds.timeout)
	defer cancel()

	var (
		url   = ds.catalogue[group.file].Locator
		first = group.offset
		last  = group.offset + group.count*ds.seqBytes - 1
	)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("constructing range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", first, last))

	resp, err := ds.client.Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, httpStatusError(resp.StatusCode, "range %d-%d of %s", first, last, url)
	}

	want := last - first + 1
	body, err := io.ReadAll(io.LimitReader(resp.Body, want))
	if err != nil {
		return nil, wrapTransportError(err)
	}
	if int64(len(body)) < want {
		return nil, errorf(
			KindTruncated,
			"range %d-%d of %s returned %d bytes",
			first, last, url, len(body),
		)
	}
	return body, nil
}

// Catalogue returns the discovered file catalogue.
func (ds *HTTPDataset) Catalogue() []FileEntry {
	return ds.catalogue
}

func wrapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: KindNetwork, Message: err.Error()}
}
