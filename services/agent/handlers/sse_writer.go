// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reconnect-bio/traitbank-agent/services/agent/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics. Implementations
// handle the SSE wire format (event: type\ndata: json\n\n) internally.
//
// Each event is automatically assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 hash of event content for integrity
//   - PrevHash: Hash of previous event for chain verification
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write
type SSEWriter interface {
	// WriteEvent writes a single SSE event to the response. Id, CreatedAt,
	// Hash and PrevHash are populated automatically.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteProcess writes a process event describing pipeline progress.
	WriteProcess(summary, description string) error

	// WriteText writes a text event with a human-readable result.
	WriteText(text string) error

	// WriteArtifact writes an artifact event referencing structured data.
	WriteArtifact(artifact datatypes.ArtifactInfo) error

	// WriteError writes an error event. The message must already be
	// sanitized for client display; the stream closes after it.
	WriteError(errMsg string) error

	// WriteDone writes the final event of a successful stream.
	WriteDone(requestID string) error

	// WriteKeepAlive sends an SSE comment (": ping") to keep the TCP
	// connection active during long upstream calls. Comments are ignored
	// by clients and do not advance the hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter for HTTP SSE responses.
//
// The writer maintains a hash chain for integrity verification: each
// event's Hash is SHA-256 of its content, and each event's PrevHash links
// to the previous event. This provides chain of custody for results,
// artifact references, and timestamps.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
// Returns an error if the ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:   w,
		flusher:  flusher,
		prevHash: "",
	}, nil
}

// WriteEvent populates event metadata, serializes to JSON, and writes in
// SSE format. Flushes immediately after writing.
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash

	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// computeEventHash computes the SHA-256 hash of event content. Artifacts
// are JSON-serialized so the hash covers their metadata and URIs. Called
// before event.Hash is set.
func computeEventHash(event datatypes.StreamEvent) string {
	artifactJSON := ""
	if event.Artifact != nil {
		if data, err := json.Marshal(event.Artifact); err == nil {
			artifactJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Summary,
		event.Description,
		event.Text,
		event.Error,
		event.RequestId,
		artifactJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// WriteProcess writes a process event.
func (w *sseWriter) WriteProcess(summary, description string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:        datatypes.EventProcess,
		Summary:     summary,
		Description: description,
	})
}

// WriteText writes a text event.
func (w *sseWriter) WriteText(text string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.EventText,
		Text: text,
	})
}

// WriteArtifact writes an artifact event.
func (w *sseWriter) WriteArtifact(artifact datatypes.ArtifactInfo) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:     datatypes.EventArtifact,
		Artifact: &artifact,
	})
}

// WriteError writes an error event.
func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.EventError,
		Error: errMsg,
	})
}

// WriteDone writes the final event of a successful stream.
func (w *sseWriter) WriteDone(requestID string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.EventDone,
		RequestId: requestID,
	})
}

// WriteKeepAlive sends an SSE comment line.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
// Must be called before writing any response body.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
