// SPDX-License-Identifier: Apache-2.0

package agentcard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
)

func TestHandler_NoCard(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, WellKnownPath, nil)
	rec := httptest.NewRecorder()

	Handler(nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if _, err := Encode(nil); err == nil {
		t.Fatalf("expected error encoding a nil card")
	}
}

func TestHandler_BytesStableAcrossCalls(t *testing.T) {
	card := Build(Config{
		Name:        "hr-agent",
		Description: "Handles HR tasks",
		URL:         "http://localhost:3000/api/agents/hr",
		Skills: []a2a.AgentSkill{
			{ID: "employee_lookup", Name: "Employee Lookup", Description: "Find employees", Tags: []string{"hr"}},
		},
	})
	payload, err := Encode(card)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	handler := Handler(payload)

	var bodies []string
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, WellKnownPath, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Type") != DefaultMediaType {
			t.Fatalf("expected content type %q", DefaultMediaType)
		}
		bodies = append(bodies, rec.Body.String())
	}
	if bodies[0] != bodies[1] || bodies[1] != bodies[2] {
		t.Fatalf("card bytes differ between calls")
	}
}

func TestBuild_Defaults(t *testing.T) {
	card := Build(Config{Name: "finance-agent"})
	if card.Version != DefaultVersion || card.ProtocolVersion != DefaultProtocolVersion {
		t.Fatalf("unexpected defaults: %+v", card)
	}
	if card.PreferredTransport != a2a.TransportProtocolJSONRPC {
		t.Fatalf("expected JSON-RPC transport, got %q", card.PreferredTransport)
	}
	if len(card.DefaultInputModes) != 1 || card.DefaultInputModes[0] != MediaTypeTextPlain {
		t.Fatalf("expected text/plain input mode, got %v", card.DefaultInputModes)
	}
}

func TestResolve_Success(t *testing.T) {
	payload, err := Encode(Build(Config{Name: "demo-agent"}))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/api/agents/demo"+WellKnownPath, Handler(payload))
	server := httptest.NewServer(mux)
	defer server.Close()

	got, err := Resolve(context.Background(), server.Client(), server.URL+"/api/agents/demo")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.Name != "demo-agent" {
		t.Fatalf("expected name %q, got %q", "demo-agent", got.Name)
	}
}

func TestResolve_NonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := Resolve(context.Background(), nil, server.URL); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}
