// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reconnect-bio/traitbank-agent/services/agent/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runTaxonName  string // Taxon name to search for
	runTaxonIDs   string // Comma-separated taxon IDs
	runJSONOutput bool   // Print raw event JSON instead of formatted output
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// runCmd executes an agent run and streams the results.
//
// # Examples
//
//	traitbank run --name "Anadara kagoshimensis"
//	traitbank run --id 94,95
//	traitbank run --id 94 --json | jq .
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch trait data for a taxon name or taxon ID(s)",
	Long: `Runs the agent's get_data entrypoint and streams progress.

Provide a taxon name to resolve matching taxon IDs first, or one or more
comma-separated taxon IDs to fetch trait records directly. When both are
given the name takes priority.`,
	RunE: runRunCommand,
}

func init() {
	runCmd.Flags().StringVar(&runTaxonName, "name", "",
		"Taxon name to search for (e.g. \"Anadara kagoshimensis\")")
	runCmd.Flags().StringVar(&runTaxonIDs, "id", "",
		"Taxon ID or comma-separated taxon IDs (e.g. 94,95)")
	runCmd.Flags().BoolVar(&runJSONOutput, "json", false,
		"Print raw event JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runRunCommand(cmd *cobra.Command, args []string) error {
	if runTaxonName == "" && runTaxonIDs == "" {
		return fmt.Errorf("either --name or --id must be provided")
	}

	body, err := json.Marshal(datatypes.AgentRunRequest{
		Entrypoint: datatypes.EntrypointGetData,
		Name:       runTaxonName,
		ID:         runTaxonIDs,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/v1/agent/run", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}

	// No overall timeout: runs stream until done and send keepalives.
	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach agent at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned %s: %s", resp.Status, errBody)
	}

	return streamEvents(resp.Body, os.Stdout, runJSONOutput)
}

// streamEvents reads an SSE stream and renders each event to out. With
// rawJSON set, event payloads are passed through one per line.
func streamEvents(r io.Reader, out io.Writer, rawJSON bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			// event: lines and keepalive comments carry no payload
			continue
		}

		if rawJSON {
			fmt.Fprintln(out, data)
			continue
		}

		var event datatypes.StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("malformed event from server: %w", err)
		}
		renderEvent(out, event)

		if event.Type == datatypes.EventError {
			return fmt.Errorf("run failed: %s", event.Error)
		}
	}
	return scanner.Err()
}

// renderEvent prints one event in human-readable form.
func renderEvent(out io.Writer, event datatypes.StreamEvent) {
	switch event.Type {
	case datatypes.EventProcess:
		fmt.Fprintf(out, "▸ %s: %s\n", event.Summary, event.Description)
	case datatypes.EventText:
		fmt.Fprintln(out, event.Text)
	case datatypes.EventArtifact:
		if event.Artifact == nil {
			return
		}
		fmt.Fprintf(out, "⇒ artifact (%s): %s\n", event.Artifact.Mimetype, event.Artifact.Description)
		for _, uri := range event.Artifact.Uris {
			fmt.Fprintf(out, "    %s\n", uri)
		}
	case datatypes.EventError:
		fmt.Fprintf(out, "✗ %s\n", event.Error)
	case datatypes.EventDone:
		fmt.Fprintf(out, "✓ done (request %s, %s)\n",
			event.RequestId, time.UnixMilli(event.CreatedAt).Format("15:04:05"))
	}
}
