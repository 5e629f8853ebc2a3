// Package provider implements the external data source adapters for the live
// tracker subsystem. Adapters normalize provider payloads into the common
// point model and own their per-provider auth, throttle, and backoff state.
package provider

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/argosight/livetrack/pkg/model"
)

// FetchResult is the explicit adapter result. Ordinary failure modes
// (timeout, empty payload, missing credentials, rate limiting) never surface
// as errors; they yield an empty point list plus a descriptive warning.
type FetchResult struct {
	Points   []model.TrackerPoint
	Warnings []string
}

// Adapter is the contract shared by all provider adapters.
type Adapter interface {
	Kind() model.Kind
	Fetch(ctx context.Context, limit int) FetchResult
}

// fetchTimeout bounds every provider HTTP call so a stuck upstream cannot
// stall unrelated snapshot reads.
const fetchTimeout = 8 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: fetchTimeout}
}

// maxPayloadBytes caps provider response bodies so a misbehaving upstream
// cannot exhaust memory.
const maxPayloadBytes = 16 << 20

func readAllBounded(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxPayloadBytes))
}
