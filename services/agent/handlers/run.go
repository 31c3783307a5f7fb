// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP handlers for the agent service.
//
// # Endpoints
//
//   - GET  /health                    liveness probe
//   - GET  /.well-known/agent.json    agent card (capability discovery)
//   - POST /v1/agent/run              run the agent, streaming SSE events
//
// # Streaming
//
// The run endpoint streams process, text and artifact events as the
// pipeline advances, ending with a done event (or an error event on
// failure). Events carry a SHA-256 hash chain; see sse_writer.go.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reconnect-bio/traitbank-agent/pkg/logging"
	"github.com/reconnect-bio/traitbank-agent/services/agent/datatypes"
	"github.com/reconnect-bio/traitbank-agent/services/agent/observability"
	"github.com/reconnect-bio/traitbank-agent/services/agent/pipeline"
)

// keepAliveInterval is how often SSE comments are sent during long
// upstream calls. Below common load balancer idle timeouts (60s).
const keepAliveInterval = 15 * time.Second

// RunPipeline is the pipeline surface the handler needs.
// *pipeline.Pipeline satisfies it; tests substitute mocks.
type RunPipeline interface {
	Run(ctx context.Context, req datatypes.AgentRunRequest, emit pipeline.Emitter) error
}

// Handler holds the dependencies for all agent endpoints.
type Handler struct {
	pipeline RunPipeline
	metrics  *observability.Metrics
	logger   *logging.Logger
	card     datatypes.AgentCard
}

// NewHandler creates a Handler. metrics and logger may be nil.
func NewHandler(p RunPipeline, card datatypes.AgentCard, metrics *observability.Metrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.New(logging.Config{Quiet: true})
	}
	return &Handler{
		pipeline: p,
		metrics:  metrics,
		logger:   logger,
		card:     card,
	}
}

// HandleHealth serves the liveness probe.
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "traitbank-agent",
		"version": h.card.Version,
	})
}

// HandleAgentCard serves the agent card for capability discovery.
func (h *Handler) HandleAgentCard(c *gin.Context) {
	c.JSON(http.StatusOK, h.card)
}

// HandleRun executes an agent run, streaming results over SSE.
//
// Request validation failures return 400 with a JSON error before any
// streaming begins. Once the stream is open, failures are reported as
// error events.
func (h *Handler) HandleRun(c *gin.Context) {
	var req datatypes.AgentRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Entrypoint != datatypes.EntrypointGetData {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Unknown entrypoint: %s", req.Entrypoint),
		})
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	requestID := uuid.New().String()
	log := h.logger.With("request_id", requestID)
	log.Info("run started", "entrypoint", req.Entrypoint, "name", req.Name, "id", req.ID)

	if h.metrics != nil {
		h.metrics.StreamStarted()
	}
	start := time.Now()

	// Keepalives cover the gap while upstream calls are in flight.
	stopKeepAlive := make(chan struct{})
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopKeepAlive:
				return
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			}
		}
	}()

	runErr := h.pipeline.Run(c.Request.Context(), req, &sseEmitter{writer: writer})
	close(stopKeepAlive)

	success := runErr == nil
	if runErr != nil {
		// The emitter failed, usually because the client disconnected.
		// Writing an error event is best effort at this point.
		log.Warn("run aborted", "error", runErr.Error())
		_ = writer.WriteError("stream aborted")
	} else {
		if err := writer.WriteDone(requestID); err != nil {
			log.Warn("failed to write done event", "error", err.Error())
			success = false
		}
	}

	if h.metrics != nil {
		h.metrics.StreamEnded()
		h.metrics.RecordRun(req.Entrypoint, success)
		h.metrics.RecordStreamDuration(time.Since(start), success)
	}
	log.Info("run finished", "success", success, "duration_ms", time.Since(start).Milliseconds())
}

// sseEmitter adapts SSEWriter to the pipeline.Emitter interface.
type sseEmitter struct {
	writer SSEWriter
}

func (e *sseEmitter) Process(summary, description string) error {
	return e.writer.WriteProcess(summary, description)
}

func (e *sseEmitter) Text(text string) error {
	return e.writer.WriteText(text)
}

func (e *sseEmitter) Artifact(artifact datatypes.ArtifactInfo) error {
	return e.writer.WriteArtifact(artifact)
}

var _ pipeline.Emitter = (*sseEmitter)(nil)
