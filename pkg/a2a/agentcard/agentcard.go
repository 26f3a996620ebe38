// SPDX-License-Identifier: Apache-2.0

package agentcard

import "github.com/a2aproject/a2a-go/a2a"

// Defaults applied by Build when the config leaves a field empty.
const (
	DefaultProtocolVersion = "0.3.0"
	DefaultVersion         = "1.0.0"
	MediaTypeTextPlain     = "text/plain"
)

// Config describes AgentCard fields that can be derived from runtime settings.
type Config struct {
	ProtocolVersion    string
	Name               string
	Description        string
	URL                string
	Version            string
	Streaming          bool
	DefaultInputModes  []string
	DefaultOutputModes []string
	Skills             []a2a.AgentSkill
	Provider           *a2a.AgentProvider
}

// Build assembles an a2a.AgentCard for a JSON-RPC agent. The returned card
// is owned by the caller and must not be mutated once published.
func Build(cfg Config) *a2a.AgentCard {
	card := &a2a.AgentCard{
		ProtocolVersion:    orDefault(cfg.ProtocolVersion, DefaultProtocolVersion),
		Name:               cfg.Name,
		Description:        cfg.Description,
		URL:                cfg.URL,
		Version:            orDefault(cfg.Version, DefaultVersion),
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Capabilities: a2a.AgentCapabilities{
			Streaming: cfg.Streaming,
		},
		DefaultInputModes:  modesOrText(cfg.DefaultInputModes),
		DefaultOutputModes: modesOrText(cfg.DefaultOutputModes),
		Skills:             append([]a2a.AgentSkill{}, cfg.Skills...),
	}
	if cfg.Provider != nil {
		provider := *cfg.Provider
		card.Provider = &provider
	}
	return card
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func modesOrText(modes []string) []string {
	if len(modes) == 0 {
		return []string{MediaTypeTextPlain}
	}
	return append([]string{}, modes...)
}
