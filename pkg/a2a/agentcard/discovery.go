// SPDX-License-Identifier: Apache-2.0

package agentcard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"
	"github.com/a2aproject/a2a-go/a2asrv"
)

// WellKnownPath is where an agent publishes its card, relative to the
// agent URL.
const WellKnownPath = a2asrv.WellKnownAgentCardPath

// DefaultMediaType is the media type used when publishing cards.
const DefaultMediaType = "application/json"

// Encode serializes the card once so every publication is byte-identical.
func Encode(card *a2a.AgentCard) ([]byte, error) {
	if card == nil {
		return nil, fmt.Errorf("agent card not configured")
	}
	return json.Marshal(card)
}

// Handler serves a pre-encoded card. An empty payload yields 404.
func Handler(payload []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(payload) == 0 {
			http.Error(w, "agent card not configured", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", DefaultMediaType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	})
}

// Resolve fetches the card an agent publishes under agentURL + WellKnownPath.
// A nil client uses the a2a-go default resolver.
func Resolve(ctx context.Context, client *http.Client, agentURL string) (*a2a.AgentCard, error) {
	resolver := agentcard.DefaultResolver
	if client != nil {
		resolver = agentcard.NewResolver(client)
	}
	card, err := resolver.Resolve(ctx, agentURL)
	if err != nil {
		return nil, fmt.Errorf("resolve agent card from %s: %w", agentURL, err)
	}
	return card, nil
}
