// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// =============================================================================
// Trait Records
// =============================================================================

// TraitRecord is one trait observation from the TraitBank /traits/ endpoint.
//
// The verbose form carries full provenance: who recorded the value, when it
// was modified, and the supporting text excerpt from the source literature.
// Fields the upstream emits as `false` when absent (doi, source_of_synonymy,
// the text excerpt block) use FlexString and normalize to "".
type TraitRecord struct {
	Taxon           string     `json:"taxon,omitempty"`
	Author          string     `json:"author,omitempty"`
	Rank            string     `json:"rank,omitempty"`
	ValidTaxon      string     `json:"valid_taxon,omitempty"`
	ValidAuthor     string     `json:"valid_author,omitempty"`
	TaxonomicStatus string     `json:"taxonomic_status,omitempty"`
	SourceOfSynonym FlexString `json:"source_of_synonymy,omitempty"`
	Parent          string     `json:"parent,omitempty"`

	Trait                string `json:"trait,omitempty"`
	Category             string `json:"category,omitempty"`
	CategoryAbbreviation string `json:"category_abbreviation,omitempty"`
	TraitValue           string `json:"traitvalue,omitempty"`

	Reference string     `json:"reference,omitempty"`
	DOI       FlexString `json:"doi,omitempty"`

	ValueCreator          string `json:"value_creator,omitempty"`
	ValueCreationDate     string `json:"value_creation_date,omitempty"`
	ValueModifiedBy       string `json:"value_modified_by,omitempty"`
	ValueModificationDate string `json:"value_modification_date,omitempty"`

	TextExcerpt                 FlexString `json:"text_excerpt,omitempty"`
	TextExcerptCreator          FlexString `json:"text_excerpt_creator,omitempty"`
	TextExcerptCreationDate     FlexString `json:"text_excerpt_creation_date,omitempty"`
	TextExcerptModifiedBy       FlexString `json:"text_excerpt_modified_by,omitempty"`
	TextExcerptModificationDate FlexString `json:"text_excerpt_modification_date,omitempty"`
}

// TraitResponse is the decoded body of a /traits/{ids}/ call.
//
// With assoc=1 the upstream keys trait lists by taxon ID; without it the
// lists come back positionally. UnmarshalJSON accepts both, keying
// positional lists by index.
type TraitResponse struct {
	Records map[string][]TraitRecord
}

// UnmarshalJSON implements json.Unmarshaler, accepting either response shape.
func (r *TraitResponse) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty trait response")
	}

	switch trimmed[0] {
	case '{':
		return json.Unmarshal(trimmed, &r.Records)
	case '[':
		var lists [][]TraitRecord
		if err := json.Unmarshal(trimmed, &lists); err != nil {
			return err
		}
		r.Records = make(map[string][]TraitRecord, len(lists))
		for i, list := range lists {
			r.Records[strconv.Itoa(i)] = list
		}
		return nil
	default:
		return fmt.Errorf("unexpected trait response shape starting with %q", trimmed[0])
	}
}

// TaxonIDs returns the taxon IDs present in the response, sorted.
func (r *TraitResponse) TaxonIDs() []string {
	ids := make([]string, 0, len(r.Records))
	for id := range r.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TraitCount returns the total number of trait records across all taxa.
// A taxon with an empty list contributes zero.
func (r *TraitResponse) TraitCount() int {
	total := 0
	for _, list := range r.Records {
		total += len(list)
	}
	return total
}
