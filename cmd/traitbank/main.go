// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The traitbank command is a terminal client for the agent service.
//
// Usage:
//
//	traitbank card                           # show the agent card
//	traitbank run --name "Anadara"           # resolve a name, fetch traits
//	traitbank run --id 94,95                 # fetch traits by taxon ID
//	traitbank run --id 94 --json             # raw event JSON for scripting
//
// The server address defaults to http://localhost:9999 and can be set
// with --server or the TRAITBANK_AGENT_URL environment variable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	serverURL string // Agent base URL
	apiToken  string // Bearer token for protected deployments
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "traitbank",
	Short: "Client for the ReConnect TraitBank agent",
	Long: `Command-line client for the ReConnect TraitBank agent service.

Fetches marine species trait data by taxon name or taxon ID, streaming
progress as the agent resolves names and retrieves trait records.`,
	SilenceUsage: true,
}

func init() {
	defaultServer := os.Getenv("TRAITBANK_AGENT_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:9999"
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Agent server base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("AGENT_API_TOKEN"),
		"Bearer token for authenticated deployments")

	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
