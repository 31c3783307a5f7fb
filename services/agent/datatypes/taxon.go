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
)

// =============================================================================
// Taxon Records
// =============================================================================

// TaxonRecord is one taxon entry from the TraitBank /taxon/ endpoint.
//
// With verbose=1 the upstream returns the full record; the minimal form
// (verbose=0) carries only a subset, so every field here is optional.
// ID fields use FlexString because the upstream mixes strings and numbers.
type TaxonRecord struct {
	TaxonID         FlexString `json:"taxonID,omitempty"`
	Taxon           string     `json:"taxon,omitempty"`
	Author          string     `json:"author,omitempty"`
	Rank            string     `json:"rank,omitempty"`
	ValidID         FlexString `json:"validID,omitempty"`
	ValidTaxon      string     `json:"valid_taxon,omitempty"`
	ValidAuthor     string     `json:"valid_author,omitempty"`
	Status          string     `json:"status,omitempty"`
	SourceOfSynonym FlexString `json:"source_of_synonymy,omitempty"`
}

// TaxonResponse is the decoded body of a /taxon/{name}/ call.
//
// With assoc=1 the upstream keys records by taxon ID; without it a bare
// list comes back. UnmarshalJSON accepts both and always exposes the
// associative form, keying list entries by their own taxonID field.
type TaxonResponse struct {
	Records map[string]TaxonRecord
}

// UnmarshalJSON implements json.Unmarshaler, accepting either response shape.
func (r *TaxonResponse) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty taxon response")
	}

	switch trimmed[0] {
	case '{':
		return json.Unmarshal(trimmed, &r.Records)
	case '[':
		var list []TaxonRecord
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		r.Records = make(map[string]TaxonRecord, len(list))
		for i, rec := range list {
			key := rec.TaxonID.String()
			if key == "" {
				key = fmt.Sprintf("%d", i)
			}
			r.Records[key] = rec
		}
		return nil
	default:
		return fmt.Errorf("unexpected taxon response shape starting with %q", trimmed[0])
	}
}

// TaxonIDs returns the taxon IDs present in the response, sorted for
// deterministic downstream requests and log output.
func (r *TaxonResponse) TaxonIDs() []string {
	ids := make([]string, 0, len(r.Records))
	for id := range r.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of taxon records.
func (r *TaxonResponse) Count() int {
	return len(r.Records)
}
