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

package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pharmatrade/autoreply/internal/models"
)

// pastMailLimit caps how much past correspondence feeds a catch-all
// draft prompt.
const pastMailLimit = 5

// PastMailFetcher finds similar past correspondence for the catch-all
// scenario by matching extracted topics against topic, subject, and
// body of archived emails.
type PastMailFetcher struct {
	store *Store
}

// NewPastMailFetcher creates the catch-all scenario fetcher.
func NewPastMailFetcher(store *Store) *PastMailFetcher {
	return &PastMailFetcher{store: store}
}

// Fetch implements pipeline.Fetcher. With no topic matches the most
// recent archived emails are returned so the drafter always has some
// precedent to write from.
func (f *PastMailFetcher) Fetch(ctx context.Context, inputs models.ExtractedInput, _ map[string]any) (models.TriggerData, error) {
	in, ok := inputs.(models.CatchAllInput)
	if !ok {
		return models.TriggerData{}, fmt.Errorf("past mail fetch: unexpected input type %T", inputs)
	}

	terms := make([]string, 0, len(in.Topics)+1)
	for _, t := range in.Topics {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	if q := strings.TrimSpace(in.QuestionSummary); q != "" {
		terms = append(terms, q)
	}

	similar, err := f.search(ctx, terms)
	if err != nil {
		return models.TriggerData{}, err
	}
	if len(similar) == 0 {
		similar, err = f.search(ctx, nil)
		if err != nil {
			return models.TriggerData{}, err
		}
	}

	slog.Debug("past correspondence fetched", "matches", len(similar), "terms", len(terms))
	return models.TriggerData{
		Source: "db",
		Facts:  map[string]any{"similar_emails": similar},
	}, nil
}

func (f *PastMailFetcher) search(ctx context.Context, terms []string) ([]map[string]any, error) {
	query := `
		SELECT email_id, topic, subject, body
		FROM past_emails`
	var args []any
	if len(terms) > 0 {
		args = append(args, terms)
		query += `
		WHERE EXISTS (
			SELECT 1 FROM unnest($1::text[]) AS term
			WHERE topic ILIKE '%' || term || '%'
			   OR subject ILIKE '%' || term || '%'
			   OR body ILIKE '%' || term || '%'
		)`
	}
	query += fmt.Sprintf(" ORDER BY email_id LIMIT %d", pastMailLimit)

	rows, err := f.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query past emails: %w", err)
	}
	defer rows.Close()

	var results []map[string]any
	for rows.Next() {
		var id, topic, subject, body string
		if err := rows.Scan(&id, &topic, &subject, &body); err != nil {
			return nil, fmt.Errorf("scan past email: %w", err)
		}
		results = append(results, map[string]any{
			"email_id": id,
			"topic":    topic,
			"subject":  subject,
			"body":     body,
		})
	}
	return results, rows.Err()
}
