// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// cardCmd fetches and displays the agent card.
//
// # Examples
//
//	traitbank card
//	traitbank card --server http://agent.example.org:9999
var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Show the agent card (capabilities and entrypoints)",
	RunE:  runCardCommand,
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runCardCommand(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 15 * time.Second}

	req, err := http.NewRequest(http.MethodGet, serverURL+"/.well-known/agent.json", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach agent at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned %s: %s", resp.Status, body)
	}

	var card map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return fmt.Errorf("failed to decode agent card: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(card)
}
