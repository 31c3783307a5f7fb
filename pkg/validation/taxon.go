// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// upstream request paths or cache keys. Using these validators prevents
// injection attacks (path traversal, header injection) before the input
// ever reaches the TraitBank API.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxTaxonNameLength caps taxon name queries. The longest accepted binomial
// plus authority strings stay well under this.
const MaxTaxonNameLength = 128

// taxonIDPattern matches TraitBank internal taxon identifiers.
// The upstream database uses positive decimal integers ("94", "12345").
var taxonIDPattern = regexp.MustCompile(`^[0-9]{1,12}$`)

// deniedNameRune reports whether r must never appear in a taxon name
// query: control bytes (header/log injection) and path separators
// (traversal). Everything else is forwarded URL-escaped, so misspelled
// or unknown names still reach the upstream and 404 there.
func deniedNameRune(r rune) bool {
	return r < 0x20 || r == 0x7f || r == '/' || r == '\\'
}

// ValidateTaxonID validates a single TraitBank taxon identifier.
//
// Valid IDs are 1-12 decimal digits. Anything else (signs, letters,
// separators) is rejected so the ID can be placed in a request path
// without further escaping.
//
// Example:
//
//	if err := validation.ValidateTaxonID(id); err != nil {
//	    return nil, fmt.Errorf("invalid taxon id: %w", err)
//	}
func ValidateTaxonID(id string) error {
	if id == "" {
		return fmt.Errorf("taxon id cannot be empty")
	}

	if !taxonIDPattern.MatchString(id) {
		return fmt.Errorf("invalid taxon id format: %q (must be 1-12 decimal digits)", id)
	}

	return nil
}

// SanitizeTaxonID normalizes and validates a taxon identifier.
// Returns the trimmed ID if valid, or an error if invalid.
func SanitizeTaxonID(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	if err := ValidateTaxonID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SanitizeTaxonIDs splits a comma-separated ID list, trims each entry, drops
// empties, and validates what remains.
//
// The empty-dropping behavior is deliberate: a query like ",,94," means the
// caller supplied one usable ID, not three bad ones. An error is returned
// only when a non-empty entry fails validation.
//
//	ids, err := validation.SanitizeTaxonIDs("94, 95")
//	// ids == []string{"94", "95"}
func SanitizeTaxonIDs(raw string) ([]string, error) {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := SanitizeTaxonID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ValidateTaxonName validates a taxon name query.
//
// This is deliberately permissive: it bounds the length and rejects only
// control bytes and path separators. Whether a name exists is the
// upstream's call, so digits, diacritics and authority strings all pass
// through and unknown names fail with the upstream's own 404.
func ValidateTaxonName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("taxon name cannot be empty")
	}

	if len(name) > MaxTaxonNameLength {
		return fmt.Errorf("taxon name too long: %d bytes (max %d)", len(name), MaxTaxonNameLength)
	}

	if strings.ContainsFunc(name, deniedNameRune) {
		return fmt.Errorf("invalid taxon name: %q", name)
	}

	return nil
}

// SanitizeTaxonName trims and validates a taxon name query.
func SanitizeTaxonName(name string) (string, error) {
	normalized := strings.TrimSpace(name)
	if err := ValidateTaxonName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
