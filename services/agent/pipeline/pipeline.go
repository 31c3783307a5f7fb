// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline implements the agent's data retrieval flow.
//
// # Description
//
// A run proceeds in two steps:
//
//	Step 1: resolve the target taxon IDs
//	        - name given: exact search against /taxon/, IDs from the keys
//	        - IDs given: sanitize the comma-separated list
//	Step 2: fetch trait records for the IDs from /traits/
//
// Progress, results and artifacts are reported through an Emitter as the
// run advances, so callers can stream them to clients. Upstream failures
// are reported as text messages and end the run gracefully; only emitter
// failures (client gone) surface as errors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/reconnect-bio/traitbank-agent/pkg/logging"
	"github.com/reconnect-bio/traitbank-agent/pkg/validation"
	"github.com/reconnect-bio/traitbank-agent/services/agent/datatypes"
	"github.com/reconnect-bio/traitbank-agent/services/agent/traitbank"
)

// =============================================================================
// Interfaces
// =============================================================================

// Emitter receives run output as it is produced. Implementations stream to
// SSE, collect into slices for tests, or print to a terminal.
//
// A non-nil return from any method aborts the run; it means the consumer is
// gone, not that the pipeline failed.
type Emitter interface {
	Process(summary, description string) error
	Text(text string) error
	Artifact(artifact datatypes.ArtifactInfo) error
}

// Fetcher is the upstream access the pipeline needs. *traitbank.Client
// satisfies it; tests substitute mocks.
type Fetcher interface {
	FetchTaxonByName(ctx context.Context, name string) (*traitbank.TaxonResult, error)
	FetchTraitsByIDs(ctx context.Context, ids []string) (*traitbank.TraitResult, error)
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline executes agent runs against a TraitBank fetcher.
type Pipeline struct {
	fetcher Fetcher
	logger  *logging.Logger
}

// New creates a Pipeline. logger may be nil.
func New(fetcher Fetcher, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.New(logging.Config{Quiet: true})
	}
	return &Pipeline{fetcher: fetcher, logger: logger}
}

// queryParams mirrors the fixed upstream query policy, reported in
// artifact metadata for provenance.
func queryParams(endpoint string) map[string]any {
	params := map[string]any{"verbose": 1, "assoc": 1}
	if endpoint == "taxon" {
		params["exact"] = 1
	}
	return params
}

// Run executes one agent run, emitting progress and results through emit.
//
// The request must already have passed Validate: exactly one of Name/ID is
// set. Upstream errors end the run with an explanatory text message and a
// nil return; the returned error is non-nil only when emitting fails.
func (p *Pipeline) Run(ctx context.Context, req datatypes.AgentRunRequest, emit Emitter) error {
	var targetIDs []string

	if req.Name != "" {
		ids, done, err := p.resolveTaxonIDs(ctx, req.Name, emit)
		if err != nil || done {
			return err
		}
		targetIDs = ids
	} else {
		ids, err := validation.SanitizeTaxonIDs(req.ID)
		if err != nil || len(ids) == 0 {
			p.logger.Warn("no usable taxon ids in request", "id", req.ID)
			return emit.Text(fmt.Sprintf("No valid taxon IDs provided in input: '%s'.", req.ID))
		}
		targetIDs = ids

		if err := emit.Process(
			"Taxon ID(s) provided",
			fmt.Sprintf("Step 1: Using provided taxon ID(s): **%s**.", strings.Join(ids, ",")),
		); err != nil {
			return err
		}
	}

	return p.fetchTraits(ctx, targetIDs, emit)
}

// resolveTaxonIDs runs step 1 for a name query. done is true when the run
// ended (error text emitted or nothing to fetch) and step 2 must not start.
func (p *Pipeline) resolveTaxonIDs(ctx context.Context, name string, emit Emitter) (ids []string, done bool, err error) {
	cleanName, verr := validation.SanitizeTaxonName(name)
	if verr != nil {
		p.logger.Warn("rejected taxon name", "error", verr.Error())
		return nil, true, emit.Text(fmt.Sprintf("Invalid input parameters: %v", verr))
	}

	prefix := fmt.Sprintf("for name '%s'", cleanName)
	if err := emit.Process(
		"Taxon name provided",
		fmt.Sprintf("Step 1: Searching for taxon information %s", prefix),
	); err != nil {
		return nil, true, err
	}

	result, ferr := p.fetcher.FetchTaxonByName(ctx, cleanName)
	if ferr != nil {
		p.logger.Warn("taxon fetch failed", "name", cleanName, "error", ferr.Error())
		return nil, true, emit.Text(upstreamErrorText("taxon", prefix, ferr))
	}

	if result.Validated {
		if err := emit.Process(
			"Validating taxon response",
			fmt.Sprintf("Successfully validated API response for taxon data %s.", prefix),
		); err != nil {
			return nil, true, err
		}
	} else {
		// The taxon IDs were still recoverable from the response keys, so
		// the run continues on them.
		if err := emit.Text(fmt.Sprintf(
			"Warning: Taxon API response validation failed %s. Proceeding with taxon IDs recovered from the response.",
			prefix,
		)); err != nil {
			return nil, true, err
		}
	}

	count := result.Response.Count()
	ids = result.Response.TaxonIDs()

	if err := emit.Artifact(datatypes.ArtifactInfo{
		Mimetype:    "application/json",
		Description: fmt.Sprintf("Taxon search results %s", prefix),
		Uris:        []string{result.URL},
		Metadata: map[string]any{
			"taxon_name_query":    cleanName,
			"query_params":        queryParams("taxon"),
			"result_count":        count,
			"validated":           result.Validated,
			"retrieved_taxon_ids": ids,
			"taxon_data_root":     result.Response.Records,
		},
	}); err != nil {
		return nil, true, err
	}

	if err := emit.Text(taxonSummaryText(count, cleanName)); err != nil {
		return nil, true, err
	}

	if len(ids) == 0 {
		return nil, true, emit.Text(fmt.Sprintf(
			"No matching taxon IDs found %s. Unable to proceed to fetch trait data.", prefix,
		))
	}

	p.logger.Info("resolved taxon ids", "name", cleanName, "count", count)
	if err := emit.Process(
		"Taxon ID(s) obtained",
		fmt.Sprintf("Step 1.1: Successfully resolved taxon ID(s): **%s** %s.", strings.Join(ids, ","), prefix),
	); err != nil {
		return nil, true, err
	}
	return ids, false, nil
}

// fetchTraits runs step 2 for the resolved taxon IDs.
func (p *Pipeline) fetchTraits(ctx context.Context, ids []string, emit Emitter) error {
	queryID := strings.Join(ids, ",")

	if err := emit.Process(
		"Fetching trait data",
		fmt.Sprintf("Step 2: Fetching trait data for taxon ID(s): **%s**.", queryID),
	); err != nil {
		return err
	}

	result, ferr := p.fetcher.FetchTraitsByIDs(ctx, ids)
	if ferr != nil {
		p.logger.Warn("trait fetch failed", "ids", queryID, "error", ferr.Error())
		return emit.Text(upstreamErrorText("trait", fmt.Sprintf("for ID(s) '%s'", queryID), ferr))
	}

	if result.Validated {
		if err := emit.Process(
			"Validating trait response",
			fmt.Sprintf("Successfully validated API response for trait data for ID(s) '%s'.", queryID),
		); err != nil {
			return err
		}
	} else {
		if err := emit.Text(fmt.Sprintf(
			"Warning: Trait API response validation failed for ID(s) '%s'. Proceeding with raw data.", queryID,
		)); err != nil {
			return err
		}
	}

	count := result.Response.TraitCount()
	taxaCount := len(result.Response.Records)
	var traitDataRoot any = result.Response.Records
	if !result.Validated {
		// The decoded record map is incomplete after a validation failure;
		// hand the raw payload to the caller instead and count whatever
		// trait lists are parsable within it.
		rawRecords := result.RawRecords()
		traitDataRoot = rawRecords
		count, taxaCount = countRawTraits(rawRecords)
	}

	if count == 0 && !result.Validated {
		if err := emit.Text(fmt.Sprintf(
			"No parsable trait records found in the raw (unvalidated) data for ID(s) '%s'.", queryID,
		)); err != nil {
			return err
		}
	}

	description := fmt.Sprintf("Trait data for taxon ID(s): %s", queryID)
	if !result.Validated {
		description += " (validation failed, raw data)"
	}
	if err := emit.Artifact(datatypes.ArtifactInfo{
		Mimetype:    "application/json",
		Description: description,
		Uris:        result.URLs(),
		Metadata: map[string]any{
			"taxon_ids_queried": ids,
			"query_params":      queryParams("trait"),
			"trait_count":       count,
			"validated":         result.Validated,
			"trait_data_root":   traitDataRoot,
		},
	}); err != nil {
		return err
	}

	if err := emit.Text(traitSummaryText(count, taxaCount, queryID)); err != nil {
		return err
	}

	p.logger.Info("trait fetch completed", "ids", queryID, "trait_count", count)
	return emit.Process(
		"Trait data fetch completed",
		fmt.Sprintf("Completed trait data retrieval for ID(s): **%s**", queryID),
	)
}

// countRawTraits tallies trait records in an unvalidated payload. Only
// list-shaped values are trait lists; taxa whose data took any other
// shape contribute nothing.
func countRawTraits(records map[string]any) (traits, taxa int) {
	for _, data := range records {
		if list, ok := data.([]any); ok {
			traits += len(list)
			taxa++
		}
	}
	return traits, taxa
}

// =============================================================================
// Message Helpers
// =============================================================================

// upstreamErrorText formats a fetch failure for the client. dataType is
// "taxon" or "trait"; qualifier is "for name '...'" or "for ID(s) '...'".
func upstreamErrorText(dataType, qualifier string, err error) string {
	var se *traitbank.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("API error fetching %s data %s: %v", dataType, qualifier, se)
	}
	return fmt.Sprintf("Request error fetching %s data %s: %v", dataType, qualifier, err)
}

// taxonSummaryText summarizes a taxon search result.
func taxonSummaryText(count int, name string) string {
	if count == 0 {
		return fmt.Sprintf("No taxon records found for name '%s'.", name)
	}
	return fmt.Sprintf(
		"Found %d taxon record(s) for name '%s'. Results returned as associative array (dictionary) with taxon IDs as keys.",
		count, name,
	)
}

// traitSummaryText summarizes a trait fetch result.
func traitSummaryText(count, taxaCount int, queryID string) string {
	if count == 0 {
		return fmt.Sprintf("No trait records found for taxon ID(s): %s.", queryID)
	}
	if taxaCount > 0 {
		return fmt.Sprintf(
			"Retrieved %d trait record(s) across %d taxon/taxa for ID(s): %s. Results returned as associative array (dictionary) with taxon IDs as keys.",
			count, taxaCount, queryID,
		)
	}
	return fmt.Sprintf(
		"Retrieved %d trait record(s) for taxon ID(s): %s. Results returned as associative array (dictionary) with taxon IDs as keys.",
		count, queryID,
	)
}
