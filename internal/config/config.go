// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GraphConfig holds Microsoft Graph credentials and endpoint settings.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	UserID       string `yaml:"user_id"` // optional; "" = default mailbox
}

// LLMConfig holds the OpenAI-compatible completion settings.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// Config holds all configuration for the autoreply service.
type Config struct {
	// Provider selects the mail backend: "graph" or "mock".
	Provider string

	Graph GraphConfig
	LLM   LLMConfig

	// Webhook
	Port            int
	PublicURL       string // externally reachable base URL, for subscription creation
	ClientState     string // shared secret validated on every notification
	SubscriptionOn  bool   // create/renew the Graph subscription at startup
	RenewBuffer     time.Duration
	QueueSize       int
	Workers         int
	FetchAttempts   int
	FetchBaseDelay  time.Duration
	DraftOnly       bool

	// Dedup
	DedupPath     string
	ReplyCooldown time.Duration
	FailedTTL     time.Duration

	// Allowlist
	AllowlistPath string

	// Mock provider fixtures
	MockInboxPath string
	MockSentPath  string

	// Postgres
	DatabaseURL string

	// Redis outbox; empty URL disables publishing
	RedisURL    string
	OutboxQueue string

	// Per-scenario switches and extraction thresholds, keyed "S1".."S4".
	ScenarioEnabled    map[string]bool
	ScenarioThresholds map[string]float64
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Provider string      `yaml:"provider"`
	Graph    GraphConfig `yaml:"graph"`
	LLM      LLMConfig   `yaml:"llm"`

	Webhook struct {
		Port           int    `yaml:"port"`
		PublicURL      string `yaml:"public_url"`
		ClientState    string `yaml:"client_state"`
		Subscribe      bool   `yaml:"subscribe"`
		RenewBuffer    string `yaml:"renew_buffer"`
		QueueSize      int    `yaml:"queue_size"`
		Workers        int    `yaml:"workers"`
		FetchAttempts  int    `yaml:"fetch_attempts"`
		FetchBaseDelay string `yaml:"fetch_base_delay"`
		DraftOnly      bool   `yaml:"draft_only"`
	} `yaml:"webhook"`

	Dedup struct {
		Path          string `yaml:"path"`
		ReplyCooldown string `yaml:"reply_cooldown"`
		FailedTTL     string `yaml:"failed_ttl"`
	} `yaml:"dedup"`

	Allowlist struct {
		Path string `yaml:"path"`
	} `yaml:"allowlist"`

	Mock struct {
		InboxPath string `yaml:"inbox_path"`
		SentPath  string `yaml:"sent_path"`
	} `yaml:"mock"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Outbox string `yaml:"outbox"`
		} `yaml:"queues"`
	} `yaml:"redis"`

	Scenarios map[string]struct {
		Enabled   *bool   `yaml:"enabled"`
		Threshold float64 `yaml:"threshold"`
	} `yaml:"scenarios"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Provider: firstNonEmpty(raw.Provider, envOrDefault("MAIL_PROVIDER", "mock")),
		Graph: GraphConfig{
			TenantID:     firstNonEmpty(raw.Graph.TenantID, os.Getenv("GRAPH_TENANT_ID")),
			ClientID:     firstNonEmpty(raw.Graph.ClientID, os.Getenv("GRAPH_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Graph.ClientSecret, os.Getenv("GRAPH_CLIENT_SECRET")),
			UserID:       firstNonEmpty(raw.Graph.UserID, os.Getenv("GRAPH_USER_ID")),
		},
		LLM: LLMConfig{
			APIKey:      firstNonEmpty(raw.LLM.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:     firstNonEmpty(raw.LLM.BaseURL, os.Getenv("OPENAI_BASE_URL")),
			Model:       firstNonEmpty(raw.LLM.Model, envOrDefault("OPENAI_MODEL", "gpt-4o-mini")),
			MaxTokens:   raw.LLM.MaxTokens,
			Temperature: raw.LLM.Temperature,
		},

		Port:           firstPositive(raw.Webhook.Port, envOrDefaultInt("PORT", 8000)),
		PublicURL:      firstNonEmpty(raw.Webhook.PublicURL, os.Getenv("PUBLIC_URL")),
		ClientState:    firstNonEmpty(raw.Webhook.ClientState, os.Getenv("WEBHOOK_CLIENT_STATE")),
		SubscriptionOn: raw.Webhook.Subscribe,
		RenewBuffer:    durationOr(raw.Webhook.RenewBuffer, 6*time.Hour),
		QueueSize:      firstPositive(raw.Webhook.QueueSize, envOrDefaultInt("QUEUE_SIZE", 32)),
		Workers:        firstPositive(raw.Webhook.Workers, envOrDefaultInt("WORKERS", 2)),
		FetchAttempts:  firstPositive(raw.Webhook.FetchAttempts, envOrDefaultInt("FETCH_ATTEMPTS", 4)),
		FetchBaseDelay: durationOr(raw.Webhook.FetchBaseDelay, time.Second),
		DraftOnly:      raw.Webhook.DraftOnly || os.Getenv("DRAFT_ONLY") == "true",

		DedupPath:     firstNonEmpty(raw.Dedup.Path, envOrDefault("DEDUP_PATH", "data/dedup_state.json")),
		ReplyCooldown: durationOr(raw.Dedup.ReplyCooldown, 5*time.Minute),
		FailedTTL:     durationOr(raw.Dedup.FailedTTL, 15*time.Minute),

		AllowlistPath: firstNonEmpty(raw.Allowlist.Path, envOrDefault("ALLOWLIST_PATH", "data/allowed_senders.json")),

		MockInboxPath: firstNonEmpty(raw.Mock.InboxPath, envOrDefault("MOCK_INBOX_PATH", "data/mock_inbox.json")),
		MockSentPath:  firstNonEmpty(raw.Mock.SentPath, envOrDefault("MOCK_SENT_PATH", "data/mock_sent.json")),

		DatabaseURL: firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		OutboxQueue: firstNonEmpty(raw.Redis.Queues.Outbox, envOrDefault("OUTBOX_QUEUE", "reply-outcomes")),

		ScenarioEnabled:    map[string]bool{"S1": true, "S2": true, "S3": true, "S4": true},
		ScenarioThresholds: map[string]float64{"S1": 0.5, "S2": 0.5, "S3": 0.5, "S4": 0.3},
	}

	for code, s := range raw.Scenarios {
		code = strings.ToUpper(strings.TrimSpace(code))
		if _, known := cfg.ScenarioEnabled[code]; !known {
			return nil, fmt.Errorf("unknown scenario %q in config", code)
		}
		if s.Enabled != nil {
			cfg.ScenarioEnabled[code] = *s.Enabled
		}
		if s.Threshold > 0 {
			cfg.ScenarioThresholds[code] = s.Threshold
		}
	}

	if cfg.Provider != "graph" && cfg.Provider != "mock" {
		return nil, fmt.Errorf("unknown provider %q (want graph or mock)", cfg.Provider)
	}
	if cfg.Provider == "graph" {
		if cfg.Graph.TenantID == "" || cfg.Graph.ClientID == "" || cfg.Graph.ClientSecret == "" {
			return nil, fmt.Errorf("graph provider requires tenant_id, client_id, and client_secret")
		}
	}
	if cfg.SubscriptionOn && cfg.PublicURL == "" {
		return nil, fmt.Errorf("subscription creation requires webhook.public_url")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
