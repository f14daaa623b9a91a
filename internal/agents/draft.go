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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pharmatrade/autoreply/internal/models"
)

// Per-scenario drafting instructions appended to the shared drafter
// prompt.
var draftInstructions = map[models.Scenario]string{
	models.ScenarioSupply: `Reply to a product supply inquiry. Use the inventory figures in the fetched data to
answer availability and quantity questions. Never invent stock numbers that are not in the data.`,
	models.ScenarioAccess: `Reply to a product access inquiry. Address class of trade, certification, and account
verification points using the account data provided. Never speculate about eligibility beyond the data.`,
	models.ScenarioAllocation: `Reply to a product allocation request. Use the allocation records and any auxiliary
context to explain current allocation status, percentages, and limits for the requested period.`,
	models.ScenarioCatchAll: `Reply to a general inquiry. Answer from the similar past correspondence provided,
and direct the sender to the appropriate team for anything the data does not cover.`,
}

const draftSystemPrompt = `You draft professional reply emails for a pharmaceutical manufacturer's trade operations team.
Ground every factual statement in the extracted inputs and fetched data. Keep a courteous, concise business tone.
Respond with a JSON object: {"subject": "...", "body": "..."}.
The subject should continue the thread (an "RE:" form of the original subject is appropriate).`

// Drafter produces a scenario-specific reply draft. One instance per
// scenario, sharing the LLM client.
type Drafter struct {
	client   *Client
	scenario models.Scenario
}

// NewDrafter creates the drafter for one scenario.
func NewDrafter(client *Client, scenario models.Scenario) *Drafter {
	return &Drafter{client: client, scenario: scenario}
}

// Draft implements pipeline.Drafter.
func (d *Drafter) Draft(ctx context.Context, thread models.EmailThread, inputs models.ExtractedInput, trigger models.TriggerData) (models.DraftEmail, error) {
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return models.DraftEmail{}, fmt.Errorf("marshal inputs: %w", err)
	}
	factsJSON, err := json.Marshal(trigger.Facts)
	if err != nil {
		return models.DraftEmail{}, fmt.Errorf("marshal trigger facts: %w", err)
	}

	user := fmt.Sprintf(`%s

Email thread:
%s

Original subject: %s

Extracted inputs: %s

Fetched data (source %q): %s`,
		draftInstructions[d.scenario],
		threadPrompt(thread),
		thread.Latest.Subject,
		inputsJSON,
		trigger.Source,
		factsJSON,
	)

	var resp struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := d.client.completeJSON(ctx, draftSystemPrompt, user, &resp); err != nil {
		return models.DraftEmail{}, fmt.Errorf("draft %s reply: %w", d.scenario, err)
	}
	if resp.Body == "" {
		return models.DraftEmail{}, fmt.Errorf("drafter returned an empty body")
	}

	slog.Debug("draft complete", "thread_id", thread.ThreadID, "subject", resp.Subject)
	return models.DraftEmail{
		Subject: resp.Subject,
		Body:    resp.Body,
	}, nil
}
