// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconnect-bio/traitbank-agent/services/agent/datatypes"
	"github.com/reconnect-bio/traitbank-agent/services/agent/traitbank"
)

// =============================================================================
// Test Doubles
// =============================================================================

// mockFetcher implements Fetcher with function fields.
type mockFetcher struct {
	taxonFunc  func(ctx context.Context, name string) (*traitbank.TaxonResult, error)
	traitsFunc func(ctx context.Context, ids []string) (*traitbank.TraitResult, error)
}

func (m *mockFetcher) FetchTaxonByName(ctx context.Context, name string) (*traitbank.TaxonResult, error) {
	if m.taxonFunc == nil {
		return nil, fmt.Errorf("unexpected taxon fetch for %q", name)
	}
	return m.taxonFunc(ctx, name)
}

func (m *mockFetcher) FetchTraitsByIDs(ctx context.Context, ids []string) (*traitbank.TraitResult, error) {
	if m.traitsFunc == nil {
		return nil, fmt.Errorf("unexpected trait fetch for %v", ids)
	}
	return m.traitsFunc(ctx, ids)
}

// emitted is one recorded emitter call.
type emitted struct {
	kind        string // "process", "text", "artifact"
	summary     string
	description string
	text        string
	artifact    datatypes.ArtifactInfo
}

// recordingEmitter collects everything the pipeline emits.
type recordingEmitter struct {
	events  []emitted
	failOn  string // when set, the first call of this kind returns an error
	failErr error
}

func (r *recordingEmitter) Process(summary, description string) error {
	if r.failOn == "process" {
		return r.failErr
	}
	r.events = append(r.events, emitted{kind: "process", summary: summary, description: description})
	return nil
}

func (r *recordingEmitter) Text(text string) error {
	if r.failOn == "text" {
		return r.failErr
	}
	r.events = append(r.events, emitted{kind: "text", text: text})
	return nil
}

func (r *recordingEmitter) Artifact(artifact datatypes.ArtifactInfo) error {
	if r.failOn == "artifact" {
		return r.failErr
	}
	r.events = append(r.events, emitted{kind: "artifact", artifact: artifact})
	return nil
}

func (r *recordingEmitter) texts() []string {
	var out []string
	for _, e := range r.events {
		if e.kind == "text" {
			out = append(out, e.text)
		}
	}
	return out
}

func (r *recordingEmitter) processSummaries() []string {
	var out []string
	for _, e := range r.events {
		if e.kind == "process" {
			out = append(out, e.summary)
		}
	}
	return out
}

func (r *recordingEmitter) artifacts() []datatypes.ArtifactInfo {
	var out []datatypes.ArtifactInfo
	for _, e := range r.events {
		if e.kind == "artifact" {
			out = append(out, e.artifact)
		}
	}
	return out
}

// =============================================================================
// Fixtures
// =============================================================================

func taxonResult(url string, ids ...string) *traitbank.TaxonResult {
	records := make(map[string]datatypes.TaxonRecord, len(ids))
	for _, id := range ids {
		records[id] = datatypes.TaxonRecord{TaxonID: datatypes.FlexString(id), Taxon: "Anadara"}
	}
	return &traitbank.TaxonResult{
		URL:       url,
		Validated: true,
		Response:  datatypes.TaxonResponse{Records: records},
	}
}

func traitResult(traitsPerID map[string]int) *traitbank.TraitResult {
	records := make(map[string][]datatypes.TraitRecord, len(traitsPerID))
	var allIDs []string
	for id, n := range traitsPerID {
		list := make([]datatypes.TraitRecord, n)
		for i := range list {
			list[i] = datatypes.TraitRecord{Trait: "Feeding type", TraitValue: "suspension feeder"}
		}
		records[id] = list
		allIDs = append(allIDs, id)
	}
	return &traitbank.TraitResult{
		Validated: true,
		Response:  datatypes.TraitResponse{Records: records},
		Chunks: []traitbank.TraitChunk{{
			IDs: allIDs,
			URL: "https://traitbank.test/traits/x/?verbose=1&assoc=1",
			Raw: []byte("{}"),
		}},
	}
}

func notFound(url string) error {
	return &traitbank.StatusError{Code: http.StatusNotFound, Status: "404 Not Found", URL: url}
}

func runPipeline(t *testing.T, fetcher Fetcher, req datatypes.AgentRunRequest) *recordingEmitter {
	t.Helper()
	require.NoError(t, req.Validate())
	emit := &recordingEmitter{}
	require.NoError(t, New(fetcher, nil).Run(context.Background(), req, emit))
	return emit
}

// =============================================================================
// Name Path Tests
// =============================================================================

func TestRun_NameResolvesThenFetchesTraits(t *testing.T) {
	fetcher := &mockFetcher{
		taxonFunc: func(ctx context.Context, name string) (*traitbank.TaxonResult, error) {
			assert.Equal(t, "Anadara", name)
			return taxonResult("https://traitbank.test/taxon/Anadara/?verbose=1&assoc=1&exact=1", "93"), nil
		},
		traitsFunc: func(ctx context.Context, ids []string) (*traitbank.TraitResult, error) {
			assert.Equal(t, []string{"93"}, ids)
			return traitResult(map[string]int{"93": 2}), nil
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{Name: "Anadara"})

	assert.Equal(t, []string{
		"Taxon name provided",
		"Validating taxon response",
		"Taxon ID(s) obtained",
		"Fetching trait data",
		"Validating trait response",
		"Trait data fetch completed",
	}, emit.processSummaries())

	texts := emit.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Found 1 taxon record(s) for name 'Anadara'. Results returned as associative array (dictionary) with taxon IDs as keys.", texts[0])
	assert.Equal(t, "Retrieved 2 trait record(s) across 1 taxon/taxa for ID(s): 93. Results returned as associative array (dictionary) with taxon IDs as keys.", texts[1])

	artifacts := emit.artifacts()
	require.Len(t, artifacts, 2)
	assert.Equal(t, "Taxon search results for name 'Anadara'", artifacts[0].Description)
	assert.Equal(t, 1, artifacts[0].Metadata["result_count"])
	assert.Equal(t, []string{"93"}, artifacts[0].Metadata["retrieved_taxon_ids"])
	assert.Equal(t, "Trait data for taxon ID(s): 93", artifacts[1].Description)
	assert.Equal(t, 2, artifacts[1].Metadata["trait_count"])
	assert.Equal(t, true, artifacts[1].Metadata["validated"])
}

func TestRun_NameNotFound(t *testing.T) {
	url := "https://traitbank.test/taxon/Nonexistentus/?verbose=1&assoc=1&exact=1"
	fetcher := &mockFetcher{
		taxonFunc: func(ctx context.Context, name string) (*traitbank.TaxonResult, error) {
			return nil, notFound(url)
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{Name: "Nonexistentus"})

	texts := emit.texts()
	require.Len(t, texts, 1)
	assert.Equal(t,
		fmt.Sprintf("API error fetching taxon data for name 'Nonexistentus': 404 Not Found. URL: %s", url),
		texts[0])
	assert.Empty(t, emit.artifacts(), "no artifact after upstream failure")
}

func TestRun_UnknownNameWithDigitsReachesUpstream(t *testing.T) {
	url := "https://traitbank.test/taxon/NonExistentTaxonName123/?verbose=1&assoc=1&exact=1"
	fetcher := &mockFetcher{
		taxonFunc: func(ctx context.Context, name string) (*traitbank.TaxonResult, error) {
			assert.Equal(t, "NonExistentTaxonName123", name)
			return nil, notFound(url)
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{Name: "NonExistentTaxonName123"})

	texts := emit.texts()
	require.Len(t, texts, 1)
	assert.Equal(t,
		fmt.Sprintf("API error fetching taxon data for name 'NonExistentTaxonName123': 404 Not Found. URL: %s", url),
		texts[0])
}

func TestRun_NameTransportError(t *testing.T) {
	fetcher := &mockFetcher{
		taxonFunc: func(ctx context.Context, name string) (*traitbank.TaxonResult, error) {
			return nil, fmt.Errorf("failed to call TraitBank API: connection refused")
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{Name: "Anadara"})

	texts := emit.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Request error fetching taxon data for name 'Anadara'")
}

func TestRun_NameMatchesButNoIDs(t *testing.T) {
	fetcher := &mockFetcher{
		taxonFunc: func(ctx context.Context, name string) (*traitbank.TaxonResult, error) {
			return taxonResult("https://traitbank.test/taxon/Anadara/?verbose=1&assoc=1&exact=1"), nil
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{Name: "Anadara"})

	texts := emit.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "No taxon records found for name 'Anadara'.", texts[0])
	assert.Contains(t, texts[1], "No matching taxon IDs found for name 'Anadara'")
	assert.NotContains(t, emit.processSummaries(), "Fetching trait data")
}

func TestRun_InvalidNameRejected(t *testing.T) {
	emit := runPipeline(t, &mockFetcher{}, datatypes.AgentRunRequest{Name: "../etc/passwd"})

	texts := emit.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Invalid input parameters:")
}

// =============================================================================
// ID Path Tests
// =============================================================================

func TestRun_SingleID(t *testing.T) {
	fetcher := &mockFetcher{
		traitsFunc: func(ctx context.Context, ids []string) (*traitbank.TraitResult, error) {
			assert.Equal(t, []string{"94"}, ids)
			return traitResult(map[string]int{"94": 3}), nil
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{ID: "94"})

	assert.Equal(t, []string{
		"Taxon ID(s) provided",
		"Fetching trait data",
		"Validating trait response",
		"Trait data fetch completed",
	}, emit.processSummaries())

	texts := emit.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Retrieved 3 trait record(s)")
}

func TestRun_MultipleIDs(t *testing.T) {
	fetcher := &mockFetcher{
		traitsFunc: func(ctx context.Context, ids []string) (*traitbank.TraitResult, error) {
			assert.Equal(t, []string{"94", "95"}, ids)
			return traitResult(map[string]int{"94": 1, "95": 2}), nil
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{ID: "94, 95"})

	artifacts := emit.artifacts()
	require.Len(t, artifacts, 1)
	assert.Equal(t, 3, artifacts[0].Metadata["trait_count"])
	assert.Equal(t, []string{"94", "95"}, artifacts[0].Metadata["taxon_ids_queried"])
}

func TestRun_IDNotFound(t *testing.T) {
	url := "https://traitbank.test/traits/000000/?verbose=1&assoc=1"
	fetcher := &mockFetcher{
		traitsFunc: func(ctx context.Context, ids []string) (*traitbank.TraitResult, error) {
			return nil, notFound(url)
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{ID: "000000"})

	texts := emit.texts()
	require.Len(t, texts, 1)
	assert.Equal(t,
		fmt.Sprintf("API error fetching trait data for ID(s) '000000': 404 Not Found. URL: %s", url),
		texts[0])
}

func TestRun_EmptyIDEntries(t *testing.T) {
	emit := runPipeline(t, &mockFetcher{}, datatypes.AgentRunRequest{ID: ",,"})

	texts := emit.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "No valid taxon IDs provided in input: ',,'.", texts[0])
	assert.Empty(t, emit.processSummaries())
}

func TestRun_NonNumericIDRejected(t *testing.T) {
	emit := runPipeline(t, &mockFetcher{}, datatypes.AgentRunRequest{ID: "94,abc"})

	texts := emit.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "No valid taxon IDs provided in input: '94,abc'.", texts[0])
}

// =============================================================================
// Unvalidated Data Tests
// =============================================================================

func TestRun_UnvalidatedTraitDataProceedsRaw(t *testing.T) {
	fetcher := &mockFetcher{
		traitsFunc: func(ctx context.Context, ids []string) (*traitbank.TraitResult, error) {
			return &traitbank.TraitResult{
				Validated: false,
				Response:  datatypes.TraitResponse{Records: map[string][]datatypes.TraitRecord{}},
				Chunks: []traitbank.TraitChunk{{
					IDs: ids,
					URL: "https://traitbank.test/traits/94/?verbose=1&assoc=1",
					Raw: []byte(`{"94": {"not": "a list"}}`),
				}},
			}, nil
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{ID: "94"})

	texts := emit.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "Trait API response validation failed for ID(s) '94'. Proceeding with raw data.")
	assert.Contains(t, texts[1], "No parsable trait records found in the raw (unvalidated) data")
	assert.Equal(t, "No trait records found for taxon ID(s): 94.", texts[2])

	artifacts := emit.artifacts()
	require.Len(t, artifacts, 1)
	assert.Equal(t, "Trait data for taxon ID(s): 94 (validation failed, raw data)", artifacts[0].Description)
	assert.Equal(t, false, artifacts[0].Metadata["validated"])
	assert.Equal(t, 0, artifacts[0].Metadata["trait_count"])
	assert.Equal(t,
		map[string]any{"94": map[string]any{"not": "a list"}},
		artifacts[0].Metadata["trait_data_root"],
		"raw payload must reach the artifact even when it failed validation")
}

func TestRun_UnvalidatedTraitDataCountsParsableLists(t *testing.T) {
	raw := `{"94": [{"trait": "Feeding type"}, {"trait": "Body size"}], "95": {"not": "a list"}}`
	fetcher := &mockFetcher{
		traitsFunc: func(ctx context.Context, ids []string) (*traitbank.TraitResult, error) {
			return &traitbank.TraitResult{
				Validated: false,
				Response:  datatypes.TraitResponse{Records: map[string][]datatypes.TraitRecord{}},
				Chunks: []traitbank.TraitChunk{{
					IDs: ids,
					URL: "https://traitbank.test/traits/94,95/?verbose=1&assoc=1",
					Raw: []byte(raw),
				}},
			}, nil
		},
	}

	emit := runPipeline(t, fetcher, datatypes.AgentRunRequest{ID: "94,95"})

	texts := emit.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Trait API response validation failed for ID(s) '94,95'. Proceeding with raw data.")
	assert.Equal(t, "Retrieved 2 trait record(s) across 1 taxon/taxa for ID(s): 94,95. Results returned as associative array (dictionary) with taxon IDs as keys.", texts[1])

	artifacts := emit.artifacts()
	require.Len(t, artifacts, 1)
	assert.Equal(t, 2, artifacts[0].Metadata["trait_count"])
	root, ok := artifacts[0].Metadata["trait_data_root"].(map[string]any)
	require.True(t, ok, "trait_data_root must be the raw record map")
	assert.Len(t, root["94"], 2)
	assert.Equal(t, map[string]any{"not": "a list"}, root["95"])
}

// =============================================================================
// Emitter Failure Tests
// =============================================================================

func TestRun_EmitterFailureAbortsRun(t *testing.T) {
	fetcher := &mockFetcher{
		traitsFunc: func(ctx context.Context, ids []string) (*traitbank.TraitResult, error) {
			t.Fatal("trait fetch must not run after emitter failure")
			return nil, nil
		},
	}

	emit := &recordingEmitter{failOn: "process", failErr: fmt.Errorf("client gone")}
	req := datatypes.AgentRunRequest{ID: "94"}
	require.NoError(t, req.Validate())

	err := New(fetcher, nil).Run(context.Background(), req, emit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client gone")
}
