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

// Package agents implements the LLM collaborators of the reply pipeline:
// the thread classifier, the per-scenario input extractors and drafters,
// the draft reviewer, and the final formatter. Each agent sends one chat
// completion and parses the structured JSON answer.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/pharmatrade/autoreply/internal/models"
)

// Client is the shared chat-completion wrapper behind every agent.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// ClientConfig configures the shared LLM client.
type ClientConfig struct {
	APIKey      string
	BaseURL     string // optional, for proxies and compatible endpoints
	Model       string
	MaxTokens   int
	Temperature float32
}

const defaultModel = "gpt-4o-mini"

// NewClient creates the shared LLM client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// completeJSON sends a system+user prompt pair and unmarshals the JSON
// answer into out. Models occasionally wrap the object in prose even in
// JSON mode, so a brace-delimited substring is tried before giving up.
func (c *Client) completeJSON(ctx context.Context, system, user string, out any) error {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("empty completion response")
	}

	text := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("completion is not a JSON object: %.80s", text)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("parse completion JSON: %w", err)
	}
	return nil
}

// threadPrompt flattens a thread into the message-separated form every
// agent prompt uses.
func threadPrompt(thread models.EmailThread) string {
	parts := make([]string, 0, len(thread.Emails))
	for _, e := range thread.Emails {
		parts = append(parts, fmt.Sprintf("From: %s\nSubject: %s\n%s", e.Sender, e.Subject, e.Body))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
