// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// Stream Event Types
// =============================================================================

// Event type constants for the run stream.
const (
	// EventProcess marks a progress update within the pipeline
	// (e.g. "Step 1: Searching for taxon name ...").
	EventProcess = "process"

	// EventText carries a human-readable result summary.
	EventText = "text"

	// EventArtifact carries a structured result: the raw upstream JSON
	// reference plus metadata describing it.
	EventArtifact = "artifact"

	// EventError reports a pipeline failure. The stream closes after it.
	EventError = "error"

	// EventDone is the final event of a successful stream.
	EventDone = "done"
)

// ArtifactInfo describes a structured result produced by a run.
//
// The agent does not inline upstream payloads into the stream; it publishes
// the source URI plus metadata so clients can fetch or cite the data.
type ArtifactInfo struct {
	// Mimetype of the referenced content, always "application/json" today.
	Mimetype string `json:"mimetype"`

	// Description is a short human-readable label, e.g.
	// "Raw JSON data for taxon ID(s): 94".
	Description string `json:"description"`

	// Uris lists where the content can be retrieved. The first entry is the
	// upstream API URL the agent fetched.
	Uris []string `json:"uris"`

	// Metadata carries provenance: query parameters, result counts,
	// validation status, retrieved taxon IDs.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StreamEvent is a single event in the run response stream.
//
// Events are written over SSE as `event: {type}\ndata: {json}\n\n`. The
// writer populates Id, CreatedAt, Hash and PrevHash; the hash of each event
// covers its content and links to the previous event, giving the stream a
// verifiable chain of custody.
//
// Which content fields are set depends on Type:
//   - process:  Summary, Description
//   - text:     Text
//   - artifact: Artifact
//   - error:    Error
//   - done:     RequestId
type StreamEvent struct {
	Id        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
	Hash      string `json:"hash"`
	PrevHash  string `json:"prev_hash"`

	Summary     string        `json:"summary,omitempty"`
	Description string        `json:"description,omitempty"`
	Text        string        `json:"text,omitempty"`
	Artifact    *ArtifactInfo `json:"artifact,omitempty"`
	Error       string        `json:"error,omitempty"`
	RequestId   string        `json:"request_id,omitempty"`
}
