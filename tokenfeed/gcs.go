package tokenfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
)

const gcsDefaultEndpoint = "https://storage.googleapis.com"

// GCSBucketURLs lists a public bucket through the anonymous JSON API,
// optionally filtered by an object-name prefix, and returns download
// URLs sorted by object name. Pagination is followed until the listing
// has no continuation token.
func GCSBucketURLs(
	ctx context.Context,
	client *http.Client,
	bucket, prefix string,
) ([]string, error) {
	return gcsBucketURLs(ctx, client, gcsDefaultEndpoint, bucket, prefix)
}

func gcsBucketURLs(
	ctx context.Context,
	client *http.Client,
	endpoint, bucket, prefix string,
) ([]string, error) {
	names, err := gcsListObjects(ctx, client, endpoint, bucket, prefix)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(names))
	for i, name := range names {
		urls[i] = fmt.Sprintf("%s/%s/%s", endpoint, bucket, name)
	}
	return urls, nil
}

func gcsListObjects(
	ctx context.Context,
	client *http.Client,
	endpoint, bucket, prefix string,
) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var (
		names     []string
		pageToken string
	)
	for {
		query := url.Values{}
		if prefix != "" {
			query.Set("prefix", prefix)
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		listURL := fmt.Sprintf("%s/storage/v1/b/%s/o", endpoint, url.PathEscape(bucket))
		if encoded := query.Encode(); encoded != "" {
			listURL += "?" + encoded
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
		if err != nil {
			return nil, fmt.Errorf("constructing listing request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, wrapTransportError(err)
		}

		var page struct {
			Items []struct {
				Name string `json:"name"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, httpStatusError(resp.StatusCode, "listing bucket %s", bucket)
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decoding listing page: %w", err)
		}
		resp.Body.Close()

		for _, item := range page.Items {
			names = append(names, item.Name)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	// The API returns objects in name order per page, but sort anyway so
	// catalogue order never depends on server behavior.
	slices.Sort(names)
	return names, nil
}
