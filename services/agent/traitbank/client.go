// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package traitbank implements the HTTP client for the ReConnect TraitBank
// API (https://traitbank-reconnect.hcmr.gr).
//
// The client fixes the query policy the agent depends on:
//   - taxon name search uses exact=1, verbose=1, assoc=1
//   - trait retrieval uses verbose=1, assoc=1
//
// Trait calls accept at most MaxIDsPerCall taxon IDs; larger ID sets are
// chunked and fetched concurrently.
package traitbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/reconnect-bio/traitbank-agent/services/agent/datatypes"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultBaseURL is the production TraitBank endpoint.
	DefaultBaseURL = "https://traitbank-reconnect.hcmr.gr"

	// MaxIDsPerCall is the upstream limit on taxon IDs per /traits/ call.
	MaxIDsPerCall = 10

	// DefaultWorkers bounds concurrent chunk fetches per request.
	DefaultWorkers = 8

	// DefaultRateLimit is the sustained request rate against the upstream,
	// in requests per second.
	DefaultRateLimit = 5

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	userAgent = "traitbank-agent/1.0 (+https://traitbank-reconnect.hcmr.gr)"
)

// =============================================================================
// Interfaces
// =============================================================================

// HTTPClient interface allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Cache is the optional read-through cache for upstream responses, keyed by
// the full request URL. A nil Cache disables caching.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
}

// Observer receives one callback per upstream HTTP call, for metrics.
// endpoint is "taxon" or "traits"; code is 0 on transport errors.
type Observer func(endpoint string, code int, duration time.Duration)

// =============================================================================
// Errors
// =============================================================================

// StatusError is returned when the upstream responds with a non-200 status.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s. URL: %s", e.Status, e.URL)
}

// IsNotFound reports whether err is a StatusError with code 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// =============================================================================
// Results
// =============================================================================

// TaxonResult is the outcome of a taxon name search.
type TaxonResult struct {
	// URL is the upstream request URL, suitable for citation.
	URL string

	// Raw is the verbatim upstream response body.
	Raw json.RawMessage

	// Response is the decoded body. When Validated is false only the
	// top-level keys (taxon IDs) could be recovered.
	Response datatypes.TaxonResponse

	// Validated reports whether the body decoded cleanly into TaxonRecords.
	Validated bool
}

// TraitChunk is one upstream /traits/ call within a trait fetch.
type TraitChunk struct {
	IDs []string
	URL string
	Raw json.RawMessage
}

// TraitResult is the outcome of a trait fetch across all chunks.
type TraitResult struct {
	// Chunks lists the upstream calls made, in ID order.
	Chunks []TraitChunk

	// Response merges the decoded records of all chunks.
	Response datatypes.TraitResponse

	// Validated reports whether every chunk decoded cleanly. A failed
	// decode is not fatal: the raw chunk is still returned so clients can
	// access the unvalidated data.
	Validated bool
}

// RawRecords merges every chunk body into a generic taxon-ID-keyed map.
// This is the fallback view after a decode failure: whatever the upstream
// sent is still handed to the caller, typed or not. Chunks whose body is
// not a JSON object are skipped.
func (r *TraitResult) RawRecords() map[string]any {
	merged := make(map[string]any)
	for _, c := range r.Chunks {
		var records map[string]any
		if err := json.Unmarshal(c.Raw, &records); err != nil {
			continue
		}
		for id, data := range records {
			merged[id] = data
		}
	}
	return merged
}

// URLs returns the upstream URLs of all chunks.
func (r *TraitResult) URLs() []string {
	urls := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		urls = append(urls, c.URL)
	}
	return urls
}

// =============================================================================
// Client
// =============================================================================

// Config holds client construction parameters. Zero values fall back to the
// package defaults.
type Config struct {
	BaseURL    string
	HTTPClient HTTPClient
	RateLimit  float64 // requests per second; 0 means DefaultRateLimit
	Workers    int
	Cache      Cache
	Observer   Observer
}

// Client is the TraitBank API client. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	limiter    *rate.Limiter
	workers    int
	cache      Cache
	observe    Observer
}

// New creates a Client from cfg, applying defaults for unset fields.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = DefaultRateLimit
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	observe := cfg.Observer
	if observe == nil {
		observe = func(string, int, time.Duration) {}
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		workers:    workers,
		cache:      cfg.Cache,
		observe:    observe,
	}
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks upstream reachability. Any HTTP response below 500 counts as
// reachable; only transport failures and server errors are reported.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: c.baseURL + "/"}
	}
	return nil
}

// TaxonURL returns the upstream URL for an exact taxon name search.
func (c *Client) TaxonURL(name string) string {
	return fmt.Sprintf("%s/taxon/%s/?verbose=1&assoc=1&exact=1", c.baseURL, url.PathEscape(name))
}

// TraitsURL returns the upstream URL for a trait fetch of the given IDs.
func (c *Client) TraitsURL(ids []string) string {
	return fmt.Sprintf("%s/traits/%s/?verbose=1&assoc=1", c.baseURL, strings.Join(ids, ","))
}

// FetchTaxonByName searches for taxa matching name exactly.
//
// Returns a StatusError on non-200 responses (404 when no taxon matches).
// A body that fails to decode into TaxonRecords is not fatal: the taxon IDs
// are recovered from the top-level keys and Validated is set false.
func (c *Client) FetchTaxonByName(ctx context.Context, name string) (*TaxonResult, error) {
	reqURL := c.TaxonURL(name)
	body, err := c.fetch(ctx, "taxon", reqURL)
	if err != nil {
		return nil, err
	}

	result := &TaxonResult{URL: reqURL, Raw: body, Validated: true}
	if err := json.Unmarshal(body, &result.Response); err != nil {
		result.Validated = false
		// Recover the taxon IDs from the raw keys so the pipeline can
		// still proceed to the trait fetch.
		var keys map[string]json.RawMessage
		if kerr := json.Unmarshal(body, &keys); kerr != nil {
			return nil, fmt.Errorf("failed to decode taxon response from %s: %w", reqURL, err)
		}
		result.Response.Records = make(map[string]datatypes.TaxonRecord, len(keys))
		for k := range keys {
			result.Response.Records[k] = datatypes.TaxonRecord{TaxonID: datatypes.FlexString(k)}
		}
	}
	return result, nil
}

// FetchTraitsByIDs fetches trait records for the given taxon IDs.
//
// IDs beyond MaxIDsPerCall are split into chunks fetched concurrently, at
// most c.workers at a time. Any chunk returning a non-200 status fails the
// whole fetch; a chunk whose body fails to decode does not (its raw data is
// kept and Validated is set false).
func (c *Client) FetchTraitsByIDs(ctx context.Context, ids []string) (*TraitResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no taxon ids to fetch")
	}

	chunks := chunkIDs(ids, MaxIDsPerCall)
	result := &TraitResult{
		Chunks:    make([]TraitChunk, len(chunks)),
		Validated: true,
	}
	result.Response.Records = make(map[string][]datatypes.TraitRecord, len(ids))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			reqURL := c.TraitsURL(chunk)
			body, err := c.fetch(gctx, "traits", reqURL)
			if err != nil {
				return err
			}

			var resp datatypes.TraitResponse
			decodeErr := json.Unmarshal(body, &resp)

			mu.Lock()
			defer mu.Unlock()
			result.Chunks[i] = TraitChunk{IDs: chunk, URL: reqURL, Raw: body}
			if decodeErr != nil {
				result.Validated = false
				return nil
			}
			for id, records := range resp.Records {
				result.Response.Records[id] = records
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// fetch performs one rate-limited GET, going through the cache when one is
// configured. Returns the response body on 200, a StatusError otherwise.
func (c *Client) fetch(ctx context.Context, endpoint, reqURL string) ([]byte, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(reqURL); ok {
			return body, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, 0, time.Since(start))
		return nil, fmt.Errorf("failed to call TraitBank API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.observe(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", reqURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: reqURL}
	}

	if c.cache != nil {
		// Cache write failures are not fatal; the response is already in hand.
		_ = c.cache.Set(reqURL, body)
	}
	return body, nil
}

// chunkIDs splits ids into groups of at most size, preserving order.
func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
