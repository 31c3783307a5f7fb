// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// AgentEntrypoint describes one operation the agent exposes.
type AgentEntrypoint struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// AgentCard is the self-describing document served at
// GET /.well-known/agent.json. Clients use it to discover the agent's
// entrypoints and their parameters.
type AgentCard struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	URL         string            `json:"url,omitempty"`
	Version     string            `json:"version"`
	Entrypoints []AgentEntrypoint `json:"entrypoints"`
}

// NewAgentCard builds the card for this service. url is the externally
// reachable base URL of the agent, or empty when unknown.
func NewAgentCard(url, version string) AgentCard {
	return AgentCard{
		Name: "ReConnect TraitBank Agent",
		Description: "Retrieves marine species trait data from the ReConnect " +
			"TraitBank (traitbank-reconnect.hcmr.gr). Resolves taxon names to " +
			"taxon IDs and fetches trait records with full provenance.",
		URL:     url,
		Version: version,
		Entrypoints: []AgentEntrypoint{
			{
				ID: EntrypointGetData,
				Description: "Fetch trait data for a taxon. Provide a taxon " +
					"name to search for matching taxa, or one or more " +
					"comma-separated taxon IDs to fetch traits directly. " +
					"When both are given the name takes priority.",
				Parameters: map[string]string{
					"name": "Taxon name to search for (optional)",
					"id":   "Taxon ID or comma-separated taxon IDs (optional)",
				},
			},
		},
	}
}
