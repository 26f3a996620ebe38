// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads concord settings from defaults, a YAML file and
// CONCORD_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CONCORD_"

// MockAPIKey selects the local policy table like an empty key does.
const MockAPIKey = "mock-key"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Server     ServerConfig     `koanf:"server"`
	Governance GovernanceConfig `koanf:"governance"`
	Router     RouterConfig     `koanf:"router"`
	Store      StoreConfig      `koanf:"store"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	ServiceName  string `koanf:"service_name"`
	Exporter     string `koanf:"exporter"` // stdout, otlp, prometheus, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
	// BaseURL is the externally visible origin used in agent card URLs.
	BaseURL        string        `koanf:"base_url"`
	RateLimit      float64       `koanf:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `koanf:"rate_burst"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type GovernanceConfig struct {
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	Timeout        time.Duration `koanf:"timeout"`
	PolicyFile     string        `koanf:"policy_file"`
	SensitiveTools []string      `koanf:"sensitive_tools"`
	AllowedAgents  []string      `koanf:"allowed_agents"`
	Breaker        BreakerConfig `koanf:"breaker"`
	Audit          AuditConfig   `koanf:"audit"`
}

// UsesLocalPolicy reports whether decisions come from the local rule table.
func (g GovernanceConfig) UsesLocalPolicy() bool {
	key := strings.TrimSpace(g.APIKey)
	return key == "" || key == MockAPIKey
}

type AuditConfig struct {
	// SQLitePath enables a local durable audit trail when set.
	SQLitePath string        `koanf:"sqlite_path"`
	Timeout    time.Duration `koanf:"timeout"`
}

type BreakerConfig struct {
	MaxFailures uint32        `koanf:"max_failures"`
	Timeout     time.Duration `koanf:"timeout"`
	Interval    time.Duration `koanf:"interval"`
}

type RouterConfig struct {
	HRURL       string        `koanf:"hr_url"`
	FinanceURL  string        `koanf:"finance_url"`
	CallTimeout time.Duration `koanf:"call_timeout"`
	Breaker     BreakerConfig `koanf:"breaker"`
}

type StoreConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite
	DSN    string `koanf:"dsn"`
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"log.level":                       "info",
		"log.format":                      "text",
		"telemetry.service_name":          "concord",
		"telemetry.exporter":              "prometheus",
		"server.addr":                     ":3000",
		"server.base_url":                 "http://localhost:3000",
		"server.rate_limit":               0.0,
		"server.rate_burst":               20,
		"server.request_timeout":          "60s",
		"governance.base_url":             "https://api.archestra.ai/v1",
		"governance.timeout":              "5s",
		"governance.sensitive_tools":      []string{"payroll_execution", "delete_user", "system_shutdown", "execute_payroll"},
		"governance.allowed_agents":       []string{"admin-agent", "orchestrator-agent"},
		"governance.breaker.max_failures": 5,
		"governance.breaker.timeout":      "30s",
		"governance.breaker.interval":     "60s",
		"governance.audit.timeout":        "5s",
		"router.call_timeout":             "10s",
		"router.breaker.max_failures":     3,
		"router.breaker.timeout":          "15s",
		"router.breaker.interval":         "60s",
		"store.driver":                    "memory",
	}
	for key, value := range defaults {
		_ = k.Set(key, value)
	}
}

// envKey maps CONCORD_SECTION_SOME_KEY to section.some_key. A double
// underscore descends one more level: CONCORD_ROUTER_BREAKER__MAX_FAILURES
// becomes router.breaker.max_failures.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	if group, leaf, nested := strings.Cut(rest, "__"); nested {
		return section + "." + group + "." + leaf
	}
	return section + "." + rest
}

// legacyEnvKey accepts the governance platform's conventional variables.
func legacyEnvKey(s string) string {
	switch s {
	case "ARCHESTRA_API_KEY":
		return "governance.api_key"
	case "ARCHESTRA_API_URL":
		return "governance.base_url"
	default:
		return ""
	}
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with a final layer of dotted-key overrides,
// typically command line flags.
func LoadWithOverrides(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("ARCHESTRA_", ".", legacyEnvKey), nil); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalizeLists(&cfg)
	return &cfg, nil
}

// normalizeLists splits comma separated values coming from the environment.
func normalizeLists(cfg *Config) {
	cfg.Governance.SensitiveTools = splitList(cfg.Governance.SensitiveTools)
	cfg.Governance.AllowedAgents = splitList(cfg.Governance.AllowedAgents)
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
