// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the TraitBank agent service.
//
// This file contains the run request type and its validation. For upstream
// response types see taxon.go and traits.go; for stream events see
// messages.go.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// EntrypointGetData is the single agent entrypoint: fetch trait data by
	// taxon name or taxon ID(s).
	EntrypointGetData = "get_data"

	// MaxNameBytes caps the taxon name query field.
	MaxNameBytes = 128

	// MaxIDListBytes caps the comma-separated taxon ID list. The upstream
	// accepts at most 10 IDs per call; 256 bytes is far beyond that.
	MaxIDListBytes = 256
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// runValidate is the validator instance for run requests.
var runValidate *validator.Validate

func init() {
	runValidate = validator.New()
}

// =============================================================================
// Run Request
// =============================================================================

// AgentRunRequest is the body of POST /v1/agent/run.
//
// Provide either a taxon name (resolved to taxon IDs first) or a taxon ID /
// comma-separated ID list (traits fetched directly). If both are given the
// name takes priority and the ID field is discarded.
//
// # Fields
//
//   - Entrypoint: Optional. Defaults to "get_data"; any other value is
//     rejected by the handler.
//   - Name: Taxon name to search for (e.g. "Anadara kagoshimensis").
//   - ID: Taxon ID or comma-separated IDs (e.g. "94" or "94,95").
type AgentRunRequest struct {
	Entrypoint string `json:"entrypoint,omitempty"`
	Name       string `json:"name,omitempty" validate:"omitempty,max=128"`
	ID         string `json:"id,omitempty" validate:"omitempty,max=256"`
}

// Validate checks field constraints and the cross-field rule: at least one
// of Name/ID must be provided. It also applies the name-priority rule by
// clearing ID when Name is set, so downstream code never sees both.
func (r *AgentRunRequest) Validate() error {
	if err := runValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid run request: %w", err)
	}

	if r.Name == "" && r.ID == "" {
		return fmt.Errorf(`either "name" or "id" must be provided`)
	}

	// Name wins when both are present.
	if r.Name != "" {
		r.ID = ""
	}

	if r.Entrypoint == "" {
		r.Entrypoint = EntrypointGetData
	}

	return nil
}
