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
	"github.com/pharmatrade/autoreply/internal/pipeline"
)

const reviewSystemPrompt = `You review drafted reply emails for a pharmaceutical manufacturer's trade operations team. Check:
1. Professional tone and grammar.
2. Accuracy: does the draft match the extracted inputs and fetched data it was written from?
3. Completeness: does it answer what the sender asked?

If the data looks inconsistent or the tone is off, use "needs_human_review" and explain in accuracy_notes.
Respond with a JSON object: {"status": "approved"|"needs_human_review", "confidence": <0..1>, "quality_score": <0..1>, "accuracy_notes": ["..."], "suggestions": ["..."]}.`

// Reviewer checks a draft against the data it was written from.
type Reviewer struct {
	client *Client
}

// NewReviewer creates the draft reviewer.
func NewReviewer(client *Client) *Reviewer {
	return &Reviewer{client: client}
}

// Review implements pipeline.Reviewer.
func (r *Reviewer) Review(ctx context.Context, draft models.DraftEmail, rc pipeline.ReviewContext) (models.ReviewResult, error) {
	inputsJSON, _ := json.Marshal(rc.Inputs)
	factsJSON, _ := json.Marshal(rc.Trigger.Facts)
	aggJSON, _ := json.Marshal(rc.Aggregated)

	user := fmt.Sprintf(`Draft to review:
Subject: %s
Body: %s
Scenario: %s

Extracted inputs: %s
Fetched data (source %q): %s
Aggregated context: %s`,
		draft.Subject, draft.Body, draft.Scenario,
		inputsJSON, rc.Trigger.Source, factsJSON, aggJSON,
	)

	var resp models.ReviewResult
	if err := r.client.completeJSON(ctx, reviewSystemPrompt, user, &resp); err != nil {
		return models.ReviewResult{}, fmt.Errorf("review draft: %w", err)
	}
	if resp.Status != models.ReviewApproved && resp.Status != models.ReviewNeedsHumanReview {
		return models.ReviewResult{}, fmt.Errorf("reviewer returned unknown status %q", resp.Status)
	}

	slog.Debug("draft reviewed", "status", resp.Status, "quality_score", resp.QualityScore)
	return resp, nil
}
