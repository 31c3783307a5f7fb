// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"strings"
	"testing"
)

const sampleStream = `event: process
data: {"id":"1","type":"process","created_at":1700000000000,"hash":"h1","prev_hash":"","summary":"Fetching trait data","description":"Step 2: Fetching trait data for taxon ID(s): **94**."}

: ping

event: artifact
data: {"id":"2","type":"artifact","created_at":1700000001000,"hash":"h2","prev_hash":"h1","artifact":{"mimetype":"application/json","description":"Trait data for taxon ID(s): 94","uris":["https://traitbank-reconnect.hcmr.gr/traits/94/?verbose=1&assoc=1"]}}

event: text
data: {"id":"3","type":"text","created_at":1700000002000,"hash":"h3","prev_hash":"h2","text":"Retrieved 2 trait record(s) across 1 taxon/taxa for ID(s): 94."}

event: done
data: {"id":"4","type":"done","created_at":1700000003000,"hash":"h4","prev_hash":"h3","request_id":"req-1"}

`

func TestStreamEvents_Formatted(t *testing.T) {
	var out bytes.Buffer
	if err := streamEvents(strings.NewReader(sampleStream), &out, false); err != nil {
		t.Fatalf("streamEvents error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"▸ Fetching trait data: Step 2:",
		"⇒ artifact (application/json): Trait data for taxon ID(s): 94",
		"https://traitbank-reconnect.hcmr.gr/traits/94/?verbose=1&assoc=1",
		"Retrieved 2 trait record(s) across 1 taxon/taxa for ID(s): 94.",
		"✓ done (request req-1",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\noutput:\n%s", want, got)
		}
	}
	if strings.Contains(got, "ping") {
		t.Error("keepalive comments must not be rendered")
	}
}

func TestStreamEvents_RawJSON(t *testing.T) {
	var out bytes.Buffer
	if err := streamEvents(strings.NewReader(sampleStream), &out, true); err != nil {
		t.Fatalf("streamEvents error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 JSON lines, got %d:\n%s", len(lines), out.String())
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "{") {
			t.Errorf("Expected JSON line, got: %s", line)
		}
	}
}

func TestStreamEvents_ErrorEventFailsRun(t *testing.T) {
	stream := `event: error
data: {"id":"1","type":"error","created_at":1700000000000,"hash":"h1","prev_hash":"","error":"stream aborted"}

`
	var out bytes.Buffer
	err := streamEvents(strings.NewReader(stream), &out, false)
	if err == nil || !strings.Contains(err.Error(), "stream aborted") {
		t.Errorf("Expected run failure, got: %v", err)
	}
}

func TestStreamEvents_MalformedEvent(t *testing.T) {
	stream := "event: text\ndata: {not json}\n\n"
	var out bytes.Buffer
	if err := streamEvents(strings.NewReader(stream), &out, false); err == nil {
		t.Error("Expected error for malformed event JSON")
	}
}
