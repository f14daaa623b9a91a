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
	"strings"

	"github.com/pharmatrade/autoreply/internal/models"
)

const formatSystemPrompt = `You finalize a reviewed reply email for sending.
Use the reply-to name to personalize the greeting (e.g., "Dear John," instead of "Dear Customer,").
If the review status is "needs_human_review", prepend a brief bracketed header note that the draft is flagged for human review.
Apply the reviewer's suggestions where they improve the email without changing its factual content.
Respond with a JSON object: {"to": "...", "subject": "...", "body": "..."}. to may be empty.`

// Formatter produces the final outbound email from a reviewed draft.
type Formatter struct {
	client *Client
}

// NewFormatter creates the final email formatter.
func NewFormatter(client *Client) *Formatter {
	return &Formatter{client: client}
}

// Format implements pipeline.Formatter. The review status on the result
// always comes from the reviewer, never from the model.
func (f *Formatter) Format(ctx context.Context, draft models.DraftEmail, review models.ReviewResult, replyTo, replyToName string) (models.FinalEmail, error) {
	if replyToName == "" {
		replyToName = "Customer"
	}

	user := fmt.Sprintf(`Draft:
Subject: %s
Body: %s
Scenario: %s

Review: status=%s, confidence=%.2f, quality_score=%.2f
Accuracy notes: %s
Suggestions: %s

Reply-to name (use for greeting): %s
Reply-to email: %s`,
		draft.Subject, draft.Body, draft.Scenario,
		review.Status, review.Confidence, review.QualityScore,
		strings.Join(review.AccuracyNotes, "; "),
		strings.Join(review.Suggestions, "; "),
		replyToName, replyTo,
	)

	var resp struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := f.client.completeJSON(ctx, formatSystemPrompt, user, &resp); err != nil {
		return models.FinalEmail{}, fmt.Errorf("format final email: %w", err)
	}
	if resp.Body == "" {
		return models.FinalEmail{}, fmt.Errorf("formatter returned an empty body")
	}

	slog.Debug("final email formatted", "subject", resp.Subject, "review_status", review.Status)
	return models.FinalEmail{
		To:           resp.To,
		Subject:      resp.Subject,
		Body:         resp.Body,
		ReviewStatus: review.Status,
		Metadata: map[string]any{
			"scenario":       string(draft.Scenario),
			"quality_score":  review.QualityScore,
			"trigger_source": draft.Metadata["trigger_source"],
		},
	}, nil
}
