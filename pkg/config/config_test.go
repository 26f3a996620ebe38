// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Governance.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Router.CallTimeout)
	assert.Equal(t, uint32(5), cfg.Governance.Breaker.MaxFailures)
	assert.Equal(t, []string{"payroll_execution", "delete_user", "system_shutdown", "execute_payroll"}, cfg.Governance.SensitiveTools)
	assert.Equal(t, []string{"admin-agent", "orchestrator-agent"}, cfg.Governance.AllowedAgents)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.True(t, cfg.Governance.UsesLocalPolicy())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concord.yaml")
	content := `
log:
  level: debug
governance:
  api_key: from-file
  timeout: 2s
  allowed_agents: [admin-agent]
router:
  hr_url: http://hr.internal/api/agents/hr
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CONCORD_LOG_LEVEL", "warn")
	t.Setenv("CONCORD_ROUTER_BREAKER__MAX_FAILURES", "9")
	t.Setenv("CONCORD_GOVERNANCE_SENSITIVE_TOOLS", "delete_user, wire_transfer")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-file", cfg.Governance.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Governance.Timeout)
	assert.Equal(t, []string{"admin-agent"}, cfg.Governance.AllowedAgents)
	assert.Equal(t, []string{"delete_user", "wire_transfer"}, cfg.Governance.SensitiveTools)
	assert.Equal(t, "http://hr.internal/api/agents/hr", cfg.Router.HRURL)
	assert.Equal(t, uint32(9), cfg.Router.Breaker.MaxFailures)
	assert.False(t, cfg.Governance.UsesLocalPolicy())
}

func TestLoadLegacyGovernanceEnv(t *testing.T) {
	t.Setenv("ARCHESTRA_API_KEY", "real-key")
	t.Setenv("ARCHESTRA_API_URL", "https://governance.example/v1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "real-key", cfg.Governance.APIKey)
	assert.Equal(t, "https://governance.example/v1", cfg.Governance.BaseURL)

	t.Setenv("CONCORD_GOVERNANCE_API_KEY", "mock-key")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Governance.UsesLocalPolicy())
}

func TestLoadWithOverrides(t *testing.T) {
	t.Setenv("CONCORD_SERVER_ADDR", ":4000")

	cfg, err := LoadWithOverrides("", map[string]any{"server.addr": ":5000", "store.driver": "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CONCORD_SERVER_ADDR":                   "server.addr",
		"CONCORD_GOVERNANCE_API_KEY":            "governance.api_key",
		"CONCORD_GOVERNANCE_AUDIT__SQLITE_PATH": "governance.audit.sqlite_path",
		"CONCORD_STORE":                         "store",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
