package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Cloud metadata endpoints answer instantly from inside a VM and are
// unroutable from anywhere else, so a timed-out probe means we're not
// on one. Works on GCP, AWS, Azure alike.
const metadataProbeURL = "http://169.254.169.254"

func probeCloudVM(ctx context.Context) bool {
	timedCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timedCtx, http.MethodGet, metadataProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// warnIfRemoteFetchOffCloud nags when a remote-backed dataset is about
// to be benchmarked from outside a cloud VM: remote fetch latencies are
// only representative when measured from the storage backend's region.
// Local and dummy datasets measure the machine itself, so those skip
// the probe entirely.
func warnIfRemoteFetchOffCloud(ctx context.Context, logger *slog.Logger, datasetKind string) {
	switch datasetKind {
	case "local", "dummy":
		return
	}
	if probeCloudVM(ctx) {
		return
	}
	logger.Warn(
		"fetching from a remote backend outside a cloud VM, latencies will not be representative of in-region training",
		slog.String(sourceKindAttrKey, datasetKind),
	)
}
