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

package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pharmatrade/autoreply/internal/models"
)

const classifySystemPrompt = `You are a routing classifier for pharmaceutical trade emails.
Classify each incoming email thread into exactly one of four scenarios:

- S1 (Product Supply): inventory, stock levels, product availability, quantities at locations or distributors, NDC inventory checks.
- S2 (Product Access): customer access, class of trade, REMS certification, 340B eligibility, DEA registration, account or address verification.
- S3 (Product Allocation): allocation requests, allocation percentages, allocation limits, year-based allocation, distributor allocation.
- S4 (Catch-All): general inquiries, ordering process, documentation, business hours, contact info, or anything that does not clearly fit S1, S2, or S3.

Consider the full thread.
Respond with a JSON object: {"scenario": "S1"|"S2"|"S3"|"S4", "confidence": <0..1>, "reasoning": "<brief>"}.`

// Classifier routes an email thread to one of the four scenarios.
type Classifier struct {
	client *Client
}

// NewClassifier creates the thread classifier.
func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// Classify implements pipeline.Classifier.
func (c *Classifier) Classify(ctx context.Context, thread models.EmailThread) (models.ScenarioDecision, error) {
	var resp struct {
		Scenario   string  `json:"scenario"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := c.client.completeJSON(ctx, classifySystemPrompt, threadPrompt(thread), &resp); err != nil {
		return models.ScenarioDecision{}, fmt.Errorf("classify thread %s: %w", thread.ThreadID, err)
	}

	scenario := models.Scenario(resp.Scenario)
	if !scenario.Valid() {
		return models.ScenarioDecision{}, fmt.Errorf("classifier returned unknown scenario %q", resp.Scenario)
	}

	slog.Debug("thread classified",
		"thread_id", thread.ThreadID,
		"scenario", scenario,
		"confidence", resp.Confidence,
	)
	return models.ScenarioDecision{
		Scenario:   scenario,
		Confidence: resp.Confidence,
		Reasoning:  resp.Reasoning,
	}, nil
}
