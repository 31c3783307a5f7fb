// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexString decodes a JSON value that the upstream emits inconsistently:
// sometimes a string, sometimes a number, sometimes a bare `false` for a
// missing value. Everything normalizes to a string; JSON `false` and `null`
// normalize to the empty string.
//
// The TraitBank API uses this shape for taxon IDs ("94" vs 94) and for
// optional provenance fields (doi, source_of_synonymy, text_excerpt).
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}

	// json.Number preserves integer IDs exactly (no float rounding).
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*f = FlexString(strconv.FormatBool(b))
		} else {
			*f = ""
		}
		return nil
	}

	return fmt.Errorf("cannot decode %s as string, number, or bool", data)
}

// String returns the normalized value.
func (f FlexString) String() string {
	return string(f)
}
